package domain

// Task is a unit of work addressed to an agent. The "type" key selects the handler;
// every other key is free-form payload.
type Task map[string]any

// TaskResult is the mapping produced by a task handler.
type TaskResult map[string]any

// TaskTypeKey is the key every Task must carry.
const TaskTypeKey = "type"

// Type returns the task's type and whether it is present and a non-empty string.
func (t Task) Type() (string, bool) {
	if t == nil {
		return "", false
	}
	s, ok := t[TaskTypeKey].(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// String returns the string stored under key, or "" when absent or not a string.
func (t Task) String(key string) string {
	s, _ := t[key].(string)
	return s
}

// Map returns the nested mapping stored under key. Both TaskResult and
// map[string]any values are accepted.
func (t Task) Map(key string) map[string]any {
	return asMap(t[key])
}

// Clone returns a shallow copy of the task.
func (t Task) Clone() Task {
	out := make(Task, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}

// Missing returns the keys absent from r, in the order given.
func (r TaskResult) Missing(keys []string) []string {
	var missing []string
	for _, k := range keys {
		if _, ok := r[k]; !ok {
			missing = append(missing, k)
		}
	}
	return missing
}

// Clone returns a shallow copy of the result.
func (r TaskResult) Clone() TaskResult {
	if r == nil {
		return nil
	}
	out := make(TaskResult, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// String returns the string stored under key, or "" when absent or not a string.
func (r TaskResult) String(key string) string {
	s, _ := r[key].(string)
	return s
}

// Map returns the nested mapping stored under key.
func (r TaskResult) Map(key string) map[string]any {
	return asMap(r[key])
}

func asMap(v any) map[string]any {
	switch m := v.(type) {
	case map[string]any:
		return m
	case TaskResult:
		return map[string]any(m)
	case Task:
		return map[string]any(m)
	}
	return nil
}
