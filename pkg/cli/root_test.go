package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/gatekeeper/pkg/auth"
	"github.com/platinummonkey/gatekeeper/pkg/rbac"
	"github.com/platinummonkey/gatekeeper/pkg/storage/memory"
)

type harness struct {
	root  *Command
	out   *bytes.Buffer
	store *memory.Store
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := memory.New()
	out := &bytes.Buffer{}
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	root := NewRootCommand(Env{
		Out:    out,
		Logger: logger,
		Open: func(context.Context, string) (rbac.Adapter, error) {
			return store, nil
		},
	})
	return &harness{root: root, out: out, store: store}
}

func (h *harness) run(t *testing.T, args ...string) error {
	t.Helper()
	h.out.Reset()
	return h.root.Execute(context.Background(), args)
}

func TestNewRootCommand(t *testing.T) {
	h := newHarness(t)

	for _, name := range []string{"seed", "check", "roles", "delete-role", "assign", "token"} {
		assert.Contains(t, h.root.Subcommands, name)
	}
	assert.Len(t, h.root.Subcommands, 6)
}

func TestExecute_Usage(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.run(t))
	assert.Contains(t, h.out.String(), "Usage: gatekeeper-cli <command> [args]")
	assert.Contains(t, h.out.String(), "delete-role")

	err := h.run(t, "push")
	assert.ErrorIs(t, err, ErrUsage)
}

func TestSeedCheckRolesDelete(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.run(t, "seed"))
	assert.Contains(t, h.out.String(), "3 roles created, 0 roles updated, 3 users assigned")

	require.NoError(t, h.run(t, "check", "-user", "manager@example.com", "-permission", "products.create"))
	assert.Contains(t, h.out.String(), "ALLOWED")

	err := h.run(t, "check", "-user", "user@example.com", "-permission", "products.read,products.create")
	assert.True(t, rbac.IsForbidden(err))
	assert.Contains(t, h.out.String(), "DENIED")

	require.NoError(t, h.run(t, "delete-role", "-name", "manager"))
	err = h.run(t, "check", "-user", "manager@example.com", "-permission", "products.read")
	assert.True(t, rbac.IsForbidden(err))

	require.NoError(t, h.run(t, "roles"))
	assert.NotContains(t, h.out.String(), "manager")
	assert.Contains(t, h.out.String(), "products.read,users.read")

	require.NoError(t, h.run(t, "roles", "-all"))
	assert.Regexp(t, `manager\s+deleted`, h.out.String())

	err = h.run(t, "delete-role", "-name", "manager")
	assert.ErrorIs(t, err, rbac.ErrRoleNotFound)
}

func TestAssign(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.run(t, "seed"))

	require.NoError(t, h.run(t, "assign", "-user", "dana@example.com", "-role", "admin"))
	require.NoError(t, h.run(t, "check", "-user", "dana@example.com", "-permission", "roles.delete"))

	require.NoError(t, h.run(t, "assign", "-user", "dana@example.com"))
	assert.Contains(t, h.out.String(), "Cleared role")
	assert.Error(t, h.run(t, "check", "-user", "dana@example.com", "-permission", "roles.delete"))
}

func TestUsageErrors(t *testing.T) {
	h := newHarness(t)

	tests := [][]string{
		{"check", "-user", "u"},
		{"check", "-permission", "p"},
		{"delete-role"},
		{"assign", "-role", "admin"},
		{"seed", "-watch"},
		{"roles", "-bogus"},
		{"token"},
	}
	for _, args := range tests {
		assert.ErrorIs(t, h.run(t, args...), ErrUsage, args)
	}
}

func TestSeed_MissingFile(t *testing.T) {
	h := newHarness(t)
	err := h.run(t, "seed", "-file", filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "failed to read seed file")
}

func TestOpenError(t *testing.T) {
	root := NewRootCommand(Env{
		Out: io.Discard,
		Open: func(context.Context, string) (rbac.Adapter, error) {
			return nil, errors.New("dial tcp: connection refused")
		},
	})
	err := root.Execute(context.Background(), []string{"roles"})
	assert.ErrorContains(t, err, "failed to open adapter")
}

func TestReadOnlyAdapter(t *testing.T) {
	readOnly := rbac.AdapterFunc{
		UserRole: func(context.Context, string) (string, bool, error) { return "", false, nil },
		RolePermissions: func(context.Context, string) (rbac.PermissionSet, error) {
			return rbac.PermissionSet{}, nil
		},
	}
	root := NewRootCommand(Env{
		Out:  io.Discard,
		Open: func(context.Context, string) (rbac.Adapter, error) { return readOnly, nil },
	})
	assert.ErrorIs(t, root.Execute(context.Background(), []string{"roles"}), rbac.ErrReadOnly)
	assert.ErrorIs(t, root.Execute(context.Background(), []string{"seed"}), rbac.ErrReadOnly)
}

// OpenFromEnv against a sqlite file persists across separate invocations
func TestOpenFromEnv_SQLite(t *testing.T) {
	t.Setenv("GATEKEEPER_STORAGE_AUTO_MIGRATE", "true")
	target := "sqlite://" + filepath.Join(t.TempDir(), "rbac.db")

	out := &bytes.Buffer{}
	root := NewRootCommand(Env{Out: out})

	require.NoError(t, root.Execute(context.Background(), []string{"seed", "-target", target}))
	require.NoError(t, root.Execute(context.Background(), []string{"check", "-target", target, "-user", "admin@example.com", "-permission", "settings.update"}))
	assert.Contains(t, out.String(), "ALLOWED")
}

func TestOpenFromEnv_InvalidTarget(t *testing.T) {
	_, err := OpenFromEnv(context.Background(), "mongodb://localhost")
	var cfgErr *rbac.AdapterConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestToken(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.run(t, "token", "-user", "ci@example.com"))

	lines := strings.Split(strings.TrimSpace(h.out.String()), "\n")
	require.Len(t, lines, 2)
	token := strings.TrimPrefix(lines[0], "token: ")
	entry := strings.TrimPrefix(lines[1], "GATEKEEPER_AUTH_API_TOKENS=")

	hashes, err := auth.ParseTokenEntries([]string{entry})
	require.NoError(t, err)
	assert.Equal(t, "ci@example.com", hashes[auth.NewTokenGenerator().HashToken(token)])
}
