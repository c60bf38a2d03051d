package stowage

// Record 是 Stowed 的扁平化表示，供 CLI（json/yaml）与 HTTP 诊断接口输出。
type Record struct {
	Type        Type   `json:"type" yaml:"type"`
	Project     string `json:"project" yaml:"project"`
	Version     string `json:"version" yaml:"version"`
	Platform    string `json:"platform,omitempty" yaml:"platform,omitempty"`
	Arch        string `json:"arch,omitempty" yaml:"arch,omitempty"`
	Compression string `json:"compression,omitempty" yaml:"compression,omitempty"`
	Extname     string `json:"extname,omitempty" yaml:"extname,omitempty"`
	Path        string `json:"path" yaml:"path"`
}

// Record flattens s into its serializable form.
func (s Stowed) Record() Record {
	pkg := s.Stowage.Package()
	rec := Record{
		Type:    s.Stowage.Type(),
		Project: pkg.Project,
		Path:    s.Path,
	}
	if pkg.Version != nil {
		rec.Version = pkg.Version.String()
	}
	switch v := s.Stowage.(type) {
	case Bottle:
		if v.Host != nil {
			rec.Platform = string(v.Host.Platform)
			rec.Arch = string(v.Host.Arch)
		}
		rec.Compression = string(v.Compression)
	case Source:
		rec.Extname = v.Extname
	}
	return rec
}

// Records converts a listing into records, preserving order.
func Records(items []Stowed) []Record {
	out := make([]Record, 0, len(items))
	for _, item := range items {
		out = append(out, item.Record())
	}
	return out
}
