// Package record holds the canonical deployment record model and the merge
// pipeline that builds it from raw per-environment source documents.
package record

import "sort"

// Recognized attribute keys. Everything else in a source document is dropped.
const (
	AttrBranch           = "branch"
	AttrReleaseTimestamp = "release_timestamp"
	AttrCurrentRevision  = "current_revision"
	AttrDeployUser       = "deploy_user"
)

var recognizedAttrs = map[string]bool{
	AttrBranch:           true,
	AttrReleaseTimestamp: true,
	AttrCurrentRevision:  true,
	AttrDeployUser:       true,
}

// Recognized reports whether key is one of the retained attribute names.
func Recognized(key string) bool {
	return recognizedAttrs[key]
}

// AttributeSet maps recognized attribute names to their stored string values.
type AttributeSet map[string]string

// SortedKeys returns the attribute names in alphabetical order.
func (a AttributeSet) SortedKeys() []string {
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Topology tags how a project's deployment data is shaped.
type Topology int

const (
	// TopologyFlat is a single attribute set for the whole project.
	TopologyFlat Topology = iota
	// TopologyRoles partitions the project into named roles, each with its
	// own attribute set.
	TopologyRoles
)

// Deployment is one project's resolved entry: either a flat attribute set or
// a role → attribute set mapping, never both.
type Deployment struct {
	Topology Topology
	Attrs    AttributeSet
	Roles    map[string]AttributeSet
}

// RoleNames returns the role names in alphabetical order. Empty for flat
// deployments.
func (d Deployment) RoleNames() []string {
	if d.Topology != TopologyRoles {
		return nil
	}
	names := make([]string, 0, len(d.Roles))
	for name := range d.Roles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Merged is the canonical per-environment record: project name → deployment.
type Merged map[string]Deployment

// ProjectNames returns the project names in alphabetical order.
func (m Merged) ProjectNames() []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
