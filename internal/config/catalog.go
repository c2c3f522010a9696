package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Product is one purchasable credit pack.
type Product struct {
	ID      string `yaml:"id" json:"id" validate:"required"`
	Plan    string `yaml:"plan" json:"plan" validate:"required"`
	Credits int    `yaml:"credits" json:"credits" validate:"gt=0"`
}

// Catalog maps payment-provider product ids to credit amounts. Both the
// webhook and the purchase verification path read from the same Catalog.
type Catalog struct {
	Products []Product `yaml:"products" validate:"min=1,dive"`

	byID   map[string]Product
	byPlan map[string]Product
}

// DefaultCatalog is used when no catalog file is present.
func DefaultCatalog() *Catalog {
	c := &Catalog{Products: []Product{
		{ID: "471aae7a-10a5-4d4a-9b4c-3f5cab2210e7", Plan: "15_CREDITS", Credits: 15},
		{ID: "157b126c-4ff9-4c7c-aced-5331a7834cd5", Plan: "40_CREDITS", Credits: 40},
	}}
	c.index()
	return c
}

// LoadCatalog reads a YAML catalog from path. A missing file yields DefaultCatalog.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return DefaultCatalog(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read catalog %q: %w", path, err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes and validates a YAML catalog document.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if err := validator.New().Struct(&c); err != nil {
		return nil, fmt.Errorf("invalid catalog: %w", err)
	}
	c.index()
	if len(c.byID) != len(c.Products) || len(c.byPlan) != len(c.Products) {
		return nil, fmt.Errorf("invalid catalog: duplicate product id or plan")
	}
	return &c, nil
}

func (c *Catalog) index() {
	c.byID = make(map[string]Product, len(c.Products))
	c.byPlan = make(map[string]Product, len(c.Products))
	for _, p := range c.Products {
		c.byID[p.ID] = p
		c.byPlan[p.Plan] = p
	}
}

// ByID returns the product with the given provider id.
func (c *Catalog) ByID(id string) (Product, bool) {
	p, ok := c.byID[id]
	return p, ok
}

// ByPlan returns the product sold under a plan name such as "15_CREDITS".
func (c *Catalog) ByPlan(plan string) (Product, bool) {
	p, ok := c.byPlan[plan]
	return p, ok
}
