package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	domain "github.com/freshbasket/api/internal/domain"
	"github.com/freshbasket/api/internal/repositories"
)

type catalogFixture struct {
	svc      CatalogService
	products *stubProductRepo
	stores   *stubStoreRepo
}

func newCatalogFixture(t *testing.T) *catalogFixture {
	t.Helper()
	reg := newStubRegistry()
	reg.stores.put(domain.Store{ID: "s1", Name: "Greenfield Market", Active: true})
	reg.products.put(domain.Product{ID: "p1", StoreID: "s1", Name: "Café Crème Yogurt", Description: "Cultured with espresso", PriceCents: 450, Stock: 12, Active: true})
	reg.products.put(domain.Product{ID: "p2", StoreID: "s1", Name: "Jalapeño Salsa", Description: "Medium heat", PriceCents: 600, Stock: 8, Active: true})
	reg.products.put(domain.Product{ID: "p3", StoreID: "s1", Name: "Cafe Blend Beans", Description: "Retired roast", PriceCents: 1200, Stock: 0, Active: false})

	svc, err := NewCatalogService(CatalogServiceDeps{
		Products: reg.products,
		Stores:   reg.stores,
		Clock:    func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) },
		IDGen:    func() string { return "generated" },
	})
	if err != nil {
		t.Fatalf("new catalog service: %v", err)
	}
	return &catalogFixture{svc: svc, products: reg.products, stores: reg.stores}
}

func TestSearchProductsFoldsDiacritics(t *testing.T) {
	f := newCatalogFixture(t)

	page, err := f.svc.SearchProducts(context.Background(), SearchProductsCommand{Query: "cafe"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	// p1 matches through folding, p3 matches but is inactive.
	if len(page.Items) != 1 || page.Items[0].ID != "p1" {
		t.Fatalf("expected only the active folded match, got %+v", page.Items)
	}

	page, err = f.svc.SearchProducts(context.Background(), SearchProductsCommand{Query: "JALAPENO"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].ID != "p2" {
		t.Fatalf("expected folded match on jalapeño, got %+v", page.Items)
	}
}

func TestSearchProductsMatchesDescription(t *testing.T) {
	f := newCatalogFixture(t)

	page, err := f.svc.SearchProducts(context.Background(), SearchProductsCommand{Query: "espresso"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].ID != "p1" {
		t.Fatalf("expected description match, got %+v", page.Items)
	}
}

func TestSearchProductsRequiresQuery(t *testing.T) {
	f := newCatalogFixture(t)
	if _, err := f.svc.SearchProducts(context.Background(), SearchProductsCommand{Query: "   "}); !errors.Is(err, ErrCatalogInvalidInput) {
		t.Fatalf("expected invalid input for blank query, got %v", err)
	}
}

func TestListProductsForwardsFilter(t *testing.T) {
	f := newCatalogFixture(t)

	page, err := f.svc.ListProducts(context.Background(), repositories.ProductListFilter{StoreID: "s1", OnlyActive: true})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Items) != 2 {
		t.Fatalf("expected two active products, got %d", len(page.Items))
	}
}

func TestGetProductNotFound(t *testing.T) {
	f := newCatalogFixture(t)
	if _, err := f.svc.GetProduct(context.Background(), "missing"); !errors.Is(err, ErrCatalogNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := f.svc.GetProduct(context.Background(), ""); !errors.Is(err, ErrCatalogInvalidInput) {
		t.Fatalf("expected invalid input for empty id, got %v", err)
	}
}

func TestUpsertProductSanitizesDescription(t *testing.T) {
	f := newCatalogFixture(t)

	saved, err := f.svc.UpsertProduct(context.Background(), UpsertProductCommand{
		ActorID: "admin_1",
		Product: domain.Product{
			Name:        "  Heirloom Tomatoes  ",
			StoreID:     "s1",
			Description: `<p>Vine ripened</p><script>alert("x")</script>`,
			PriceCents:  350,
			Stock:       20,
			Active:      true,
		},
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if saved.Name != "Heirloom Tomatoes" {
		t.Fatalf("expected trimmed name, got %q", saved.Name)
	}
	if strings.Contains(saved.Description, "script") || strings.Contains(saved.Description, "alert") {
		t.Fatalf("script content must be stripped, got %q", saved.Description)
	}
	if !strings.Contains(saved.Description, "Vine ripened") {
		t.Fatalf("benign markup content must survive, got %q", saved.Description)
	}
	if !strings.HasPrefix(saved.ID, "prd_") {
		t.Fatalf("expected generated product id, got %q", saved.ID)
	}
	if saved.CreatedAt.IsZero() || saved.UpdatedAt.IsZero() {
		t.Fatalf("expected timestamps on new product: %+v", saved)
	}
}

func TestUpsertProductValidates(t *testing.T) {
	f := newCatalogFixture(t)
	cases := []struct {
		name    string
		product domain.Product
	}{
		{"missing name", domain.Product{StoreID: "s1", PriceCents: 100}},
		{"missing store", domain.Product{Name: "Bread", PriceCents: 100}},
		{"negative price", domain.Product{Name: "Bread", StoreID: "s1", PriceCents: -1}},
		{"negative stock", domain.Product{Name: "Bread", StoreID: "s1", PriceCents: 100, Stock: -1}},
		{"unknown store", domain.Product{Name: "Bread", StoreID: "s_ghost", PriceCents: 100}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.UpsertProduct(context.Background(), UpsertProductCommand{Product: tc.product})
			if !errors.Is(err, ErrCatalogInvalidInput) {
				t.Fatalf("expected invalid input, got %v", err)
			}
		})
	}
}

type stubImageSigner struct {
	url string
	err error
}

func (s *stubImageSigner) SignedImageURL(_ context.Context, object string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.url + object, nil
}

func TestProductImageURL(t *testing.T) {
	reg := newStubRegistry()
	signer := &stubImageSigner{url: "https://img.example.com/"}
	svc, err := NewCatalogService(CatalogServiceDeps{Products: reg.products, Stores: reg.stores, Images: signer})
	if err != nil {
		t.Fatalf("new catalog service: %v", err)
	}

	url, err := svc.ProductImageURL(context.Background(), domain.Product{ImagePath: "products/p1.jpg"})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if url != "https://img.example.com/products/p1.jpg" {
		t.Fatalf("unexpected url %q", url)
	}

	// Products without an image resolve to an empty URL, not an error.
	url, err = svc.ProductImageURL(context.Background(), domain.Product{})
	if err != nil || url != "" {
		t.Fatalf("expected empty url for bare product, got %q %v", url, err)
	}

	signer.err = errors.New("bucket gone")
	if _, err := svc.ProductImageURL(context.Background(), domain.Product{ImagePath: "p"}); !errors.Is(err, ErrCatalogUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
}
