package storage

import (
	"fmt"
	"strings"

	"github.com/tigerroll/salesync/pkg/batch/adapter/storage/config"
)

// Order is the tie-break of a PrefixPolicy.
type Order string

const (
	// OrderFirst picks the lexicographically smallest key.
	OrderFirst Order = "first"
	// OrderNewest picks the most recently modified object; equal times fall back to the larger key.
	OrderNewest Order = "newest"
)

// PrefixPolicy selects among the objects whose key starts with Prefix.
type PrefixPolicy struct {
	prefix string
	order  Order
}

var _ SelectionPolicy = PrefixPolicy{}

// NewPrefixPolicy builds the policy from configuration. An empty order means OrderFirst.
func NewPrefixPolicy(cfg config.SelectionConfig) (PrefixPolicy, error) {
	order := Order(strings.ToLower(strings.TrimSpace(cfg.Order)))
	switch order {
	case "":
		order = OrderFirst
	case OrderFirst, OrderNewest:
	default:
		return PrefixPolicy{}, fmt.Errorf("unknown storage.selection.order %q (want %q or %q)", cfg.Order, OrderFirst, OrderNewest)
	}
	return PrefixPolicy{prefix: cfg.Prefix, order: order}, nil
}

func (p PrefixPolicy) Prefix() string { return p.prefix }

func (p PrefixPolicy) Order() Order { return p.order }

// Select ignores directory placeholders (keys ending in "/").
func (p PrefixPolicy) Select(objects []ObjectInfo) (ObjectInfo, bool) {
	var best ObjectInfo
	found := false
	for _, o := range objects {
		if !strings.HasPrefix(o.Key, p.prefix) || strings.HasSuffix(o.Key, "/") {
			continue
		}
		if !found || p.better(o, best) {
			best, found = o, true
		}
	}
	return best, found
}

func (p PrefixPolicy) better(candidate, current ObjectInfo) bool {
	if p.order == OrderNewest {
		if !candidate.LastModified.Equal(current.LastModified) {
			return candidate.LastModified.After(current.LastModified)
		}
		return candidate.Key > current.Key
	}
	return candidate.Key < current.Key
}
