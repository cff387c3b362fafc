package schedule

// FieldMapping declares which element property feeds each task field.
// Empty strings mean "not mapped".
type FieldMapping struct {
	ID           string `json:"id" yaml:"id"`
	Name         string `json:"name,omitempty" yaml:"name,omitempty"`
	StartDate    string `json:"startDate" yaml:"startDate"`
	EndDate      string `json:"endDate" yaml:"endDate"`
	Progress     string `json:"progress,omitempty" yaml:"progress,omitempty"`
	Dependencies string `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
}

// MappingField describes one mappable task field.
type MappingField struct {
	Key      string
	Label    string
	Required bool
}

// MappingFields lists the mappable fields in form order.
var MappingFields = []MappingField{
	{Key: "id", Label: "Task ID", Required: true},
	{Key: "name", Label: "Task Name"},
	{Key: "startDate", Label: "Start Date", Required: true},
	{Key: "endDate", Label: "End Date", Required: true},
	{Key: "progress", Label: "Progress (%)"},
	{Key: "dependencies", Label: "Dependencies"},
}

// Get returns the property name mapped to the given field key.
func (m FieldMapping) Get(key string) string {
	switch key {
	case "id":
		return m.ID
	case "name":
		return m.Name
	case "startDate":
		return m.StartDate
	case "endDate":
		return m.EndDate
	case "progress":
		return m.Progress
	case "dependencies":
		return m.Dependencies
	}
	return ""
}

// Set assigns a property name to the given field key. Unknown keys are ignored.
func (m *FieldMapping) Set(key, property string) {
	switch key {
	case "id":
		m.ID = property
	case "name":
		m.Name = property
	case "startDate":
		m.StartDate = property
	case "endDate":
		m.EndDate = property
	case "progress":
		m.Progress = property
	case "dependencies":
		m.Dependencies = property
	}
}

// Missing returns the keys of required fields that are not mapped.
func (m FieldMapping) Missing() []string {
	missing := []string{}
	for _, f := range MappingFields {
		if f.Required && m.Get(f.Key) == "" {
			missing = append(missing, f.Key)
		}
	}
	return missing
}

// Complete reports whether every required field is mapped.
func (m FieldMapping) Complete() bool {
	return len(m.Missing()) == 0
}

// PropertyFilter returns the distinct mapped property names in field order.
func (m FieldMapping) PropertyFilter() []string {
	seen := make(map[string]bool)
	filter := []string{}
	for _, f := range MappingFields {
		name := m.Get(f.Key)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		filter = append(filter, name)
	}
	return filter
}
