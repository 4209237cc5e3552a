package testutil

import (
	"testing"

	"github.com/zjrosen/arbiter/internal/registry"
)

// Blog is a small extension that owns an article type and the /blog tree.
func Blog() *Builder {
	return NewBuilder("com.acme.blog").
		WithContentType("article", Label("Article")).
		WithRoutes("/blog", "/blog/{slug}").
		WithMenuEntry("blog", Label("Blog"), Weight(10)).
		WithUIBlock("recent-posts")
}

// Shop collides with Blog on the article type and the blog menu entry, and
// claims its own checkout flow.
func Shop() *Builder {
	return NewBuilder("com.acme.shop").
		WithContentType("product", Label("Product")).
		WithContentType("article", Label("Buying guide")).
		WithRoutes("/checkout", "/cart").
		WithMenuEntry("blog", Label("Guides"), Weight(20)).
		WithFieldGroup("seo", Meta("target", "product"))
}

// Payments claims /checkout, which Shop already owns.
func Payments() *Builder {
	return NewBuilder("com.acme.payments").
		WithRoutes("/checkout", "/payments/webhook").
		WithUIBlock("pay-button")
}

// NewRegistry returns a registry that is closed when the test ends.
func NewRegistry(t *testing.T, opts ...registry.Option) *registry.Registry {
	t.Helper()
	reg := registry.New(opts...)
	t.Cleanup(reg.Close)
	return reg
}

// Populated registers Blog, Shop and Payments in that order under the
// default policies.
func Populated(t *testing.T, opts ...registry.Option) *registry.Registry {
	t.Helper()
	reg := NewRegistry(t, opts...)
	for _, b := range []*Builder{Blog(), Shop(), Payments()} {
		b.Register(t, reg)
	}
	return reg
}
