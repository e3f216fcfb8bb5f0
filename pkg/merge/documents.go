package merge

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"

	"mercator-hq/modelrouter/pkg/store"
)

const (
	servicesKey  = "services"
	instancesKey = "instances"
	metadataKey  = "_metadata"
)

// MergeDocuments folds docs, oldest first, into one document. Top-level keys
// are overwritten by later documents except "services", which is merged per
// service type. Within a service, "instances" are merged by their
// name@baseUrl identity: a later instance replaces an earlier one in place,
// new identities are appended, and instances with neither name nor baseUrl
// are appended as they are. The inputs are not modified.
func MergeDocuments(docs ...store.Document) store.Document {
	var m merger
	return m.run(nil, docs)
}

// Outcome is a merged document and what the merge overrode on the way.
type Outcome struct {
	Merged    store.Document
	Conflicts []string
	Warnings  []string
}

// conflictFields are the instance fields whose disagreement between two
// documents is reported as a conflict.
var conflictFields = []string{"weight", "status", "timeout", "retryCount", "maxConnections"}

// volatileInstanceFields hold runtime health state and are dropped before
// merging.
var volatileInstanceFields = []string{"health", "lastHealthCheck", "healthCheckCount", "lastError"}

// MergeWithConflicts merges like MergeDocuments after dropping the _metadata
// block and instance health fields from each input. Top-level keys and
// service fields whose value a later document changes are reported in
// Conflicts, as are the instance fields in conflictFields. Service types
// replaced wholesale and instances without an identity are reported in
// Warnings. labels name the documents in those messages; a missing label
// falls back to "document N".
func MergeWithConflicts(labels []string, docs ...store.Document) Outcome {
	m := merger{detect: true}
	merged := m.run(labels, docs)
	return Outcome{Merged: merged, Conflicts: m.conflicts, Warnings: m.warnings}
}

type merger struct {
	detect    bool
	source    string
	conflicts []string
	warnings  []string
}

func (m *merger) run(labels []string, docs []store.Document) store.Document {
	merged := store.Document{}
	for i, doc := range docs {
		m.source = fmt.Sprintf("document %d", i+1)
		if i < len(labels) && labels[i] != "" {
			m.source = labels[i]
		}
		if m.detect {
			doc = stripVolatile(doc)
		}
		for _, key := range sortedKeys(doc) {
			value := doc[key]
			if key == servicesKey {
				if incoming, ok := asMap(value); ok {
					existing, _ := asMap(merged[key])
					merged[key] = m.mergeServices(existing, incoming)
					continue
				}
			}
			if prev, ok := merged[key]; ok {
				m.changed(fmt.Sprintf("key %q", key), prev, value)
			}
			merged[key] = value
		}
	}
	return merged
}

// mergeServices returns a new map holding existing with incoming applied per
// service type.
func (m *merger) mergeServices(existing, incoming map[string]any) map[string]any {
	out := make(map[string]any, len(existing)+len(incoming))
	for k, v := range existing {
		out[k] = v
	}
	for _, serviceType := range sortedKeys(incoming) {
		value := incoming[serviceType]
		next, ok := asMap(value)
		current, present := out[serviceType]
		prev, prevOK := asMap(current)
		if !ok || (present && !prevOK) {
			if present {
				m.warn("service %q replaced as a whole", serviceType)
			}
			out[serviceType] = value
			continue
		}
		out[serviceType] = m.mergeServiceConfig(serviceType, prev, next)
	}
	return out
}

// mergeServiceConfig overwrites fields of one service config, merging the
// instance lists.
func (m *merger) mergeServiceConfig(serviceType string, existing, incoming map[string]any) map[string]any {
	out := make(map[string]any, len(existing)+len(incoming))
	for k, v := range existing {
		out[k] = v
	}
	for _, k := range sortedKeys(incoming) {
		v := incoming[k]
		if k == instancesKey {
			if next, ok := v.([]any); ok {
				prev, _ := out[k].([]any)
				out[k] = m.mergeInstances(serviceType, prev, next)
				continue
			}
		}
		if prev, ok := out[k]; ok {
			m.changed(fmt.Sprintf("service %q field %q", serviceType, k), prev, v)
		}
		out[k] = v
	}
	return out
}

// mergeInstances unions two instance lists by identity, keeping first-seen order.
func (m *merger) mergeInstances(serviceType string, existing, incoming []any) []any {
	out := make([]any, 0, len(existing)+len(incoming))
	index := make(map[string]int, len(existing)+len(incoming))

	add := func(inst any, fresh bool) {
		id, ok := instanceID(inst)
		if !ok {
			if fresh {
				m.warn("service %q has an instance without name or baseUrl", serviceType)
			}
			out = append(out, inst)
			return
		}
		if i, seen := index[id]; seen {
			if fresh {
				m.instanceConflicts(serviceType, id, out[i], inst)
			}
			out[i] = inst
			return
		}
		index[id] = len(out)
		out = append(out, inst)
	}

	for _, inst := range existing {
		add(inst, false)
	}
	for _, inst := range incoming {
		add(inst, true)
	}
	return out
}

func (m *merger) instanceConflicts(serviceType, id string, prev, next any) {
	if !m.detect {
		return
	}
	a, _ := asMap(prev)
	b, _ := asMap(next)
	for _, field := range conflictFields {
		av, bv := a[field], b[field]
		if av != nil && bv != nil {
			m.changed(fmt.Sprintf("service %q instance %q field %q", serviceType, id, field), av, bv)
		}
	}
}

// changed records a conflict when next differs from prev.
func (m *merger) changed(subject string, prev, next any) {
	if !m.detect || store.EqualValues(prev, next) {
		return
	}
	m.conflicts = append(m.conflicts, fmt.Sprintf("%s: %s changed from %s to %s",
		m.source, subject, compact(prev), compact(next)))
}

func (m *merger) warn(format string, args ...any) {
	if !m.detect {
		return
	}
	m.warnings = append(m.warnings, m.source+": "+fmt.Sprintf(format, args...))
}

// instanceID returns name@baseUrl for an instance record. Records that are
// not objects, or have neither field, have no identity.
func instanceID(inst any) (string, bool) {
	m, ok := asMap(inst)
	if !ok {
		return "", false
	}
	name, _ := m["name"].(string)
	baseURL, _ := m["baseUrl"].(string)
	if name == "" && baseURL == "" {
		return "", false
	}
	return name + "@" + baseURL, true
}

// stripVolatile returns a copy of doc without the _metadata block or the
// instance health fields. Untouched branches are shared with doc.
func stripVolatile(doc store.Document) store.Document {
	out := make(store.Document, len(doc))
	for k, v := range doc {
		if k == metadataKey {
			continue
		}
		out[k] = v
	}
	svcs, ok := asMap(out[servicesKey])
	if !ok {
		return out
	}
	cleanSvcs := make(map[string]any, len(svcs))
	for serviceType, cfg := range svcs {
		cfgMap, ok := asMap(cfg)
		if !ok {
			cleanSvcs[serviceType] = cfg
			continue
		}
		list, ok := cfgMap[instancesKey].([]any)
		if !ok {
			cleanSvcs[serviceType] = cfg
			continue
		}
		cleanList := make([]any, len(list))
		for i, inst := range list {
			cleanList[i] = withoutFields(inst, volatileInstanceFields)
		}
		cleanCfg := make(map[string]any, len(cfgMap))
		for k, v := range cfgMap {
			cleanCfg[k] = v
		}
		cleanCfg[instancesKey] = cleanList
		cleanSvcs[serviceType] = cleanCfg
	}
	out[servicesKey] = cleanSvcs
	return out
}

func withoutFields(inst any, fields []string) any {
	m, ok := asMap(inst)
	if !ok {
		return inst
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if !slices.Contains(fields, k) {
			out[k] = v
		}
	}
	return out
}

// compact renders v as JSON for messages.
func compact(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

func sortedKeys[M ~map[string]V, V any](m M) []string {
	return slices.Sorted(maps.Keys(m))
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case store.Document:
		return m, true
	}
	return nil, false
}

// computeStats compares the source documents with their merge.
func computeStats(sources []store.Document, merged store.Document) Stats {
	stats := Stats{SourceVersionCount: len(sources)}

	serviceTypes := make(map[string]struct{})
	for _, doc := range sources {
		services, ok := asMap(doc[servicesKey])
		if !ok {
			continue
		}
		for serviceType, cfg := range services {
			serviceTypes[serviceType] = struct{}{}
			stats.TotalSourceInstances += countInstances(cfg)
		}
	}
	stats.TotalServiceTypes = len(serviceTypes)

	if services, ok := asMap(merged[servicesKey]); ok {
		stats.MergedServiceTypes = len(services)
		for _, cfg := range services {
			stats.MergedInstances += countInstances(cfg)
		}
	}
	stats.InstanceReduction = stats.TotalSourceInstances - stats.MergedInstances

	return stats
}

func countInstances(serviceConfig any) int {
	m, ok := asMap(serviceConfig)
	if !ok {
		return 0
	}
	instances, _ := m[instancesKey].([]any)
	return len(instances)
}
