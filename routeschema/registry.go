package routeschema

import (
	"fmt"
	"sync"

	"github.com/masnyjimmy/qvalidate/host"
	"github.com/masnyjimmy/qvalidate/schema"
)

// Part names the aspect of a request or reply a validator applies to.
type Part string

const (
	PartParams Part = "params"
	PartQuery  Part = "query"
	PartBody   Part = "body"
	PartReply  Part = "reply"
)

type validators struct {
	params *schema.Validator
	query  *schema.Validator
	body   *schema.Validator
	reply  *schema.Validator
}

// registry maps route identity to its compiled validators. Entries are written while
// the host becomes ready and only read afterwards.
type registry struct {
	mu     sync.RWMutex
	routes map[*host.Route]*validators
}

func newRegistry() *registry {
	return &registry{routes: make(map[*host.Route]*validators)}
}

// compile compiles every schema member present on the route, in the order params,
// query, body, reply. Routes without any schema get no entry.
func (r *registry) compile(engine *schema.Engine, route *host.Route) error {
	if route.Schema == nil {
		return nil
	}

	entry := &validators{}
	members := []struct {
		part Part
		doc  any
		slot **schema.Validator
	}{
		{PartParams, route.Schema.Params, &entry.params},
		{PartQuery, route.Schema.Query, &entry.query},
		{PartBody, route.Schema.Body, &entry.body},
		{PartReply, route.Schema.Reply, &entry.reply},
	}

	compiled := 0
	for _, m := range members {
		if m.doc == nil {
			continue
		}
		v, err := engine.Compile(m.doc)
		if err != nil {
			return fmt.Errorf("%s schema: %w", m.part, err)
		}
		*m.slot = v
		compiled++
	}

	if compiled == 0 {
		return nil
	}

	r.mu.Lock()
	r.routes[route] = entry
	r.mu.Unlock()
	return nil
}

func (r *registry) lookup(route *host.Route) *validators {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.routes[route]
}
