package fetch

import (
	"fmt"

	"github.com/Psantium/walkaround/internal/config"
)

// SourceInstance is one configured remote instance wavelets can be
// imported from.
type SourceInstance struct {
	id     string
	apiURL string
}

// Serialize returns the stable instance id stored in dedup tables and
// metadata.
func (s SourceInstance) Serialize() string { return s.id }

func (s SourceInstance) APIURL() string { return s.apiURL }

// InstanceFactory resolves instance ids against the configured allow-list.
type InstanceFactory struct {
	instances map[string]config.InstanceConfig
}

func NewInstanceFactory(instances map[string]config.InstanceConfig) *InstanceFactory {
	return &InstanceFactory{instances: instances}
}

func (f *InstanceFactory) Parse(id string) (SourceInstance, error) {
	inst, ok := f.instances[id]
	if !ok {
		return SourceInstance{}, fmt.Errorf("unknown source instance %q", id)
	}
	return SourceInstance{id: id, apiURL: inst.APIURL}, nil
}
