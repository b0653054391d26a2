// Package query answers host and graph queries over a flow record store.
package query

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"NetSankey/internal/engine/addr"
	"NetSankey/internal/engine/aggregator"
	"NetSankey/internal/engine/graph"
	"NetSankey/internal/metrics"
	"NetSankey/internal/model"
	"NetSankey/internal/store"

	"github.com/patrickmn/go-cache"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	queryHosts    = "hosts"
	queryTraffic  = "traffic"
	queryOverview = "overview"
)

// TrafficRequest selects the graph to build.
type TrafficRequest struct {
	Servers []string
	Focus   string
	Mode    model.Mode
	Detail  model.Detail
}

func (r TrafficRequest) cacheKey() string {
	servers := append([]string(nil), r.Servers...)
	sort.Strings(servers)
	return fmt.Sprintf("traffic|%s|%s|%s|%s", r.Mode, r.Detail, r.Focus, strings.Join(servers, ","))
}

// Overview is the combined host list and graph.
type Overview struct {
	Hosts []string    `json:"hosts"`
	Graph model.Graph `json:"graph"`
}

// Querier serves read queries. Results are cached for a short TTL so that
// dashboards polling the same view do not rescan the store.
type Querier struct {
	store   store.Store
	cache   *cache.Cache
	metrics *metrics.Metrics
}

// NewQuerier creates a querier. A non-positive ttl disables the cache.
func NewQuerier(st store.Store, ttl time.Duration, m *metrics.Metrics) *Querier {
	if m == nil {
		m = metrics.New(nil)
	}
	q := &Querier{store: st, metrics: m}
	if ttl > 0 {
		q.cache = cache.New(ttl, 2*ttl)
	}
	return q
}

func (q *Querier) observe(name string, start time.Time, err error) {
	q.metrics.QueryDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		q.metrics.QueryErrors.WithLabelValues(name).Inc()
	}
}

func (q *Querier) cached(name, key string) (interface{}, bool) {
	if q.cache == nil {
		return nil, false
	}
	v, ok := q.cache.Get(key)
	if ok {
		q.metrics.CacheHits.WithLabelValues(name).Inc()
	}
	return v, ok
}

func (q *Querier) remember(key string, v interface{}) {
	if q.cache != nil {
		q.cache.SetDefault(key, v)
	}
}

// Hosts returns every distinct valid endpoint, private addresses first.
func (q *Querier) Hosts(ctx context.Context) (hosts []string, err error) {
	if v, ok := q.cached(queryHosts, queryHosts); ok {
		return v.([]string), nil
	}
	defer func(start time.Time) { q.observe(queryHosts, start, err) }(time.Now())

	hosts, err = q.store.Hosts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list hosts: %w", err)
	}

	out := make([]string, 0, len(hosts))
	for _, h := range hosts {
		if !model.IsPlaceholder(h) {
			out = append(out, h)
		}
	}
	addr.Sort(out)
	q.remember(queryHosts, out)
	return out, nil
}

// Traffic aggregates the stored records and builds the graph for req.
func (q *Querier) Traffic(ctx context.Context, req TrafficRequest) (g model.Graph, err error) {
	if req.Mode == "" {
		req.Mode = model.ModeMerged
	}
	if req.Detail == "" {
		req.Detail = model.DetailProtocol
	}

	key := req.cacheKey()
	if v, ok := q.cached(queryTraffic, key); ok {
		return v.(model.Graph), nil
	}
	defer func(start time.Time) { q.observe(queryTraffic, start, err) }(time.Now())

	edges, err := q.edges(ctx, model.Filter{Focus: req.Focus}, req.Mode.GroupKey())
	if err != nil {
		return model.Graph{}, fmt.Errorf("failed to aggregate traffic: %w", err)
	}

	g = graph.Consolidate(edges, graph.Options{
		Servers: req.Servers,
		Focus:   req.Focus,
		Mode:    req.Mode,
		Detail:  req.Detail,
	})
	log.Debugf("Built %s graph with %d nodes and %d links from %d edges", req.Mode, len(g.Nodes), len(g.Links), len(edges))
	q.remember(key, g)
	return g, nil
}

// edges pushes the aggregation down to the store when it supports it.
func (q *Querier) edges(ctx context.Context, filter model.Filter, key model.GroupKey) ([]model.DirectedEdge, error) {
	if ea, ok := q.store.(store.EdgeAggregator); ok {
		return ea.AggregateEdges(ctx, filter, key)
	}

	acc := aggregator.NewAccumulator(filter, key)
	err := q.store.Scan(ctx, filter, func(rec model.FlowRecord) error {
		acc.Add(rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return acc.Edges(), nil
}

// Overview runs Hosts and Traffic concurrently.
func (q *Querier) Overview(ctx context.Context, req TrafficRequest) (ov Overview, err error) {
	defer func(start time.Time) { q.observe(queryOverview, start, err) }(time.Now())

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		hosts, err := q.Hosts(ctx)
		ov.Hosts = hosts
		return err
	})
	eg.Go(func() error {
		g, err := q.Traffic(ctx, req)
		ov.Graph = g
		return err
	})
	if err := eg.Wait(); err != nil {
		return Overview{}, err
	}
	return ov, nil
}

// Ping checks the store.
func (q *Querier) Ping(ctx context.Context) error {
	return q.store.Ping(ctx)
}
