package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/casbin/casbin/v2/model"
	"github.com/casbin/casbin/v2/persist"

	"github.com/bher20/powerdash/internal/storage"
)

// Adapter implements the Casbin persist.Adapter interface using storage.Storage.
type Adapter struct {
	storage storage.Storage
}

var _ persist.Adapter = (*Adapter)(nil)

// NewAdapter returns a new Casbin adapter.
func NewAdapter(s storage.Storage) *Adapter {
	return &Adapter{storage: s}
}

// LoadPolicy loads all policy rules from the storage.
func (a *Adapter) LoadPolicy(m model.Model) error {
	rules, err := a.storage.LoadCasbinRules(context.Background())
	if err != nil {
		return err
	}
	for _, rule := range rules {
		if err := persist.LoadPolicyLine(ruleLine(rule), m); err != nil {
			return err
		}
	}
	return nil
}

// SavePolicy is unsupported; policies are written one at a time.
func (a *Adapter) SavePolicy(m model.Model) error {
	return errors.New("auth: SavePolicy not implemented")
}

// AddPolicy adds a policy rule to the storage.
func (a *Adapter) AddPolicy(sec string, ptype string, rule []string) error {
	return a.storage.AddCasbinRule(context.Background(), toRule(ptype, rule))
}

// RemovePolicy removes a policy rule from the storage.
func (a *Adapter) RemovePolicy(sec string, ptype string, rule []string) error {
	return a.storage.RemoveCasbinRule(context.Background(), toRule(ptype, rule))
}

// RemoveFilteredPolicy removes every stored rule of ptype whose fields
// from fieldIndex on match fieldValues. Empty values match anything.
func (a *Adapter) RemoveFilteredPolicy(sec string, ptype string, fieldIndex int, fieldValues ...string) error {
	ctx := context.Background()
	rules, err := a.storage.LoadCasbinRules(ctx)
	if err != nil {
		return err
	}
	for _, r := range rules {
		if r.PType != ptype {
			continue
		}
		fields := ruleFields(r)
		match := true
		for i, v := range fieldValues {
			idx := fieldIndex + i
			if v != "" && (idx >= len(fields) || fields[idx] != v) {
				match = false
				break
			}
		}
		if match {
			if err := a.storage.RemoveCasbinRule(ctx, r); err != nil {
				return err
			}
		}
	}
	return nil
}

func toRule(ptype string, rule []string) storage.CasbinRule {
	r := storage.CasbinRule{PType: ptype}
	dst := []*string{&r.V0, &r.V1, &r.V2, &r.V3, &r.V4, &r.V5}
	for i, v := range rule {
		if i >= len(dst) {
			break
		}
		*dst[i] = v
	}
	return r
}

func ruleFields(r storage.CasbinRule) []string {
	return []string{r.V0, r.V1, r.V2, r.V3, r.V4, r.V5}
}

func ruleLine(r storage.CasbinRule) string {
	parts := []string{r.PType}
	for _, v := range ruleFields(r) {
		if v == "" {
			break
		}
		parts = append(parts, v)
	}
	return strings.Join(parts, ", ")
}
