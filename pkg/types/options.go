package types

// Option is one selectable value of a dashboard variable.
type Option struct {
	Label string
	Value any
}

// Options is a label → value mapping that remembers insertion order.
// Setting a label that already exists replaces its value in place.
// The zero value is ready to use.
type Options struct {
	index map[string]int
	items []Option
}

// NewOptions returns an empty Options with room for n entries.
func NewOptions(n int) *Options {
	return &Options{index: make(map[string]int, n), items: make([]Option, 0, n)}
}

// Set assigns value to label.
func (o *Options) Set(label string, value any) {
	if o.index == nil {
		o.index = make(map[string]int)
	}
	if i, ok := o.index[label]; ok {
		o.items[i].Value = value
		return
	}
	o.index[label] = len(o.items)
	o.items = append(o.items, Option{Label: label, Value: value})
}

// Get returns the value stored under label.
func (o *Options) Get(label string) (any, bool) {
	if o == nil {
		return nil, false
	}
	i, ok := o.index[label]
	if !ok {
		return nil, false
	}
	return o.items[i].Value, true
}

// Len returns the number of labels.
func (o *Options) Len() int {
	if o == nil {
		return 0
	}
	return len(o.items)
}

// All returns the options in insertion order. The slice must not be modified.
func (o *Options) All() []Option {
	if o == nil {
		return nil
	}
	return o.items
}
