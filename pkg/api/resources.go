package api

import (
	"context"
	"net/http"
	"sync"

	"github.com/google/uuid"

	"github.com/platinummonkey/gatekeeper/pkg/httputil"
	"github.com/platinummonkey/gatekeeper/pkg/rbac"
)

// Item is one record of an enforced resource
type Item map[string]interface{}

// Resource is a collection guarded by <Name>.read and <Name>.create
type Resource struct {
	Name   string
	List   func(ctx context.Context) ([]Item, error)
	Create func(ctx context.Context, item Item) (Item, error)
}

// ReadPermission is the permission required to list the resource
func (res Resource) ReadPermission() rbac.Permission {
	return rbac.PermissionFor(res.Name, "read")
}

// CreatePermission is the permission required to add to the resource
func (res Resource) CreatePermission() rbac.Permission {
	return rbac.PermissionFor(res.Name, "create")
}

func (s *Server) mountResource(res Resource) {
	base := "/api/" + res.Name

	if res.List != nil {
		s.router.Handle(base, s.perms.RequirePermission(res.ReadPermission())(
			http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				items, err := res.List(r.Context())
				if err != nil {
					s.internalError(w, r, err, "Failed to list "+res.Name)
					return
				}
				if items == nil {
					items = []Item{}
				}
				_ = httputil.WriteSuccess(w, items)
			}),
		)).Methods(http.MethodGet)
	}

	if res.Create != nil {
		s.router.Handle(base, s.perms.RequirePermission(res.CreatePermission())(
			http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				var item Item
				if !httputil.ParseJSONOrError(w, r, &item) {
					return
				}
				created, err := res.Create(r.Context(), item)
				if err != nil {
					s.internalError(w, r, err, "Failed to create "+res.Name)
					return
				}
				_ = httputil.WriteCreated(w, created)
			}),
		)).Methods(http.MethodPost)
	}
}

// MemoryCollection is an in-process Resource backend for demos and tests
type MemoryCollection struct {
	mu    sync.RWMutex
	items []Item
}

// NewMemoryCollection creates a collection holding items
func NewMemoryCollection(items ...Item) *MemoryCollection {
	return &MemoryCollection{items: items}
}

// List returns a copy of the items
func (c *MemoryCollection) List(ctx context.Context) ([]Item, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Item, len(c.items))
	copy(out, c.items)
	return out, nil
}

// Create stores item under a fresh id
func (c *MemoryCollection) Create(ctx context.Context, item Item) (Item, error) {
	created := make(Item, len(item)+1)
	for k, v := range item {
		created[k] = v
	}
	created["id"] = uuid.NewString()

	c.mu.Lock()
	c.items = append(c.items, created)
	c.mu.Unlock()
	return created, nil
}

// Resource exposes the collection under name
func (c *MemoryCollection) Resource(name string) Resource {
	return Resource{Name: name, List: c.List, Create: c.Create}
}

// DemoResources returns the sample users and products collections
func DemoResources() []Resource {
	users := NewMemoryCollection(
		Item{"id": "1", "name": "John Doe", "email": "john@example.com"},
		Item{"id": "2", "name": "Jane Smith", "email": "jane@example.com"},
	)
	products := NewMemoryCollection(
		Item{"id": "1", "name": "Widget A", "price": 29.99},
		Item{"id": "2", "name": "Widget B", "price": 49.99},
	)
	return []Resource{users.Resource("users"), products.Resource("products")}
}
