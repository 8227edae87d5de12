package internal

// Dictionary 房間與 peer 共用的屬性表
//
// 規則：
//   - 值為空字串代表刪除
//   - 設成相同的值不算變更
//   - 每次 Append 回傳實際變更的部分（用來減少廣播流量）
//
// 保持插入順序，Keys() 與 Values() 一一對應。
type Dictionary struct {
	keys   []string
	values map[string]string
}

// Changes 一次 Append 實際變更的鍵值，刪除的鍵對應空字串
type Changes struct {
	Keys   []string `json:"keys"`
	Values []string `json:"values"`
}

// Empty 是否沒有任何變更
func (c Changes) Empty() bool {
	return len(c.Keys) == 0
}

// NewDictionary 創建空的屬性表
func NewDictionary() *Dictionary {
	return &Dictionary{values: make(map[string]string)}
}

// Append 批量合併
//
// 同一個鍵在一批中出現多次，以最後一次為準；回傳的變更集中每個鍵最多出現一次，
// 值為該鍵最終的值。keys 比 values 長時，多出的鍵忽略。
func (d *Dictionary) Append(keys, values []string) Changes {
	changes := Changes{Keys: []string{}, Values: []string{}}

	seen := make(map[string]bool)
	for i, key := range keys {
		if i >= len(values) {
			break
		}
		if d.set(key, values[i]) && !seen[key] {
			seen[key] = true
			changes.Keys = append(changes.Keys, key)
		}
	}

	for _, key := range changes.Keys {
		changes.Values = append(changes.Values, d.Get(key))
	}
	return changes
}

// Set 單一鍵值
func (d *Dictionary) Set(key, value string) Changes {
	if !d.set(key, value) {
		return Changes{Keys: []string{}, Values: []string{}}
	}
	return Changes{Keys: []string{key}, Values: []string{value}}
}

// Replace 清空後再合併
func (d *Dictionary) Replace(keys, values []string) Changes {
	d.keys = nil
	d.values = make(map[string]string)
	return d.Append(keys, values)
}

// Get 取值，不存在回傳空字串
func (d *Dictionary) Get(key string) string {
	return d.values[key]
}

// Has 是否有此鍵
func (d *Dictionary) Has(key string) bool {
	_, ok := d.values[key]
	return ok
}

// Len 鍵的數量
func (d *Dictionary) Len() int {
	return len(d.keys)
}

// Keys 依插入順序回傳所有鍵
func (d *Dictionary) Keys() []string {
	out := make([]string, len(d.keys))
	copy(out, d.keys)
	return out
}

// Values 與 Keys 對應的值
func (d *Dictionary) Values() []string {
	out := make([]string, len(d.keys))
	for i, k := range d.keys {
		out[i] = d.values[k]
	}
	return out
}

// set 回傳是否有變更
func (d *Dictionary) set(key, value string) bool {
	current, exists := d.values[key]

	if value == "" {
		if !exists {
			return false
		}
		delete(d.values, key)
		for i, k := range d.keys {
			if k == key {
				d.keys = append(d.keys[:i], d.keys[i+1:]...)
				break
			}
		}
		return true
	}

	if exists && current == value {
		return false
	}
	if !exists {
		d.keys = append(d.keys, key)
	}
	d.values[key] = value
	return true
}
