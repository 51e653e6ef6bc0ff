// Package httputil provides the JSON response and request helpers shared by
// the gatekeeper HTTP handlers. Every error body has the shape
// {"error": "<message>"}.
package httputil
