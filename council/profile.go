package council

import "strings"

// ReviewerProfile 专家档案，注册后不可变。
type ReviewerProfile struct {
	ID          string  `json:"id" yaml:"id"`
	Weight      float64 `json:"weight" yaml:"weight"`
	FramingText string  `json:"framing_text,omitempty" yaml:"framing_text"`
}

// Registry 只读专家注册表，保留注册顺序。
type Registry struct {
	profiles []ReviewerProfile
	index    map[string]int
	folded   map[string]int
}

// NewRegistry 以给定顺序构建注册表。空 ID 与重复 ID（先到者保留）被丢弃。
func NewRegistry(profiles ...ReviewerProfile) *Registry {
	r := &Registry{
		profiles: make([]ReviewerProfile, 0, len(profiles)),
		index:    make(map[string]int, len(profiles)),
		folded:   make(map[string]int, len(profiles)),
	}
	for _, p := range profiles {
		p.ID = strings.TrimSpace(p.ID)
		if p.ID == "" {
			continue
		}
		if _, dup := r.index[p.ID]; dup {
			continue
		}
		r.index[p.ID] = len(r.profiles)
		if _, ok := r.folded[strings.ToLower(p.ID)]; !ok {
			r.folded[strings.ToLower(p.ID)] = len(r.profiles)
		}
		r.profiles = append(r.profiles, p)
	}
	return r
}

// Get 按 ID 精确查找。
func (r *Registry) Get(id string) (ReviewerProfile, bool) {
	i, ok := r.index[id]
	if !ok {
		return ReviewerProfile{}, false
	}
	return r.profiles[i], true
}

// Len 返回专家数量。
func (r *Registry) Len() int { return len(r.profiles) }

// Profiles 按注册顺序返回档案副本。
func (r *Registry) Profiles() []ReviewerProfile {
	out := make([]ReviewerProfile, len(r.profiles))
	copy(out, r.profiles)
	return out
}

// IDs 按注册顺序返回全部 ID。
func (r *Registry) IDs() []string {
	out := make([]string, len(r.profiles))
	for i, p := range r.profiles {
		out[i] = p.ID
	}
	return out
}

// Resolve 把裁决者给出的 ID 列表解析为档案。
//
// 未注册的 ID 被静默丢弃，重复项只保留第一次出现，结果保持输入顺序。
// 精确匹配失败时按大小写不敏感再匹配一次（模型常把 "Lawyer" 首字母大写）。
func (r *Registry) Resolve(ids []string) []ReviewerProfile {
	var out []ReviewerProfile
	seen := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		i, ok := r.index[id]
		if !ok {
			i, ok = r.folded[strings.ToLower(id)]
		}
		if !ok {
			continue
		}
		if _, dup := seen[i]; dup {
			continue
		}
		seen[i] = struct{}{}
		out = append(out, r.profiles[i])
	}
	return out
}
