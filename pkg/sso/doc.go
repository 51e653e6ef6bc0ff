// Package sso verifies identity tokens issued by an external OpenID Connect
// provider. It never issues tokens or runs a login flow; it only turns a
// presented ID token into the stable user id the authorization layer keys on.
package sso
