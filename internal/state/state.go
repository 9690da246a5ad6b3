package state

// Namespace and Attribute identify the synchronized state payload on the
// wire. Every push tags the snapshot with both.
const (
	Namespace = "state"
	Attribute = "state"
)

// SelectedObject identifies one object selected in the App.
type SelectedObject struct {
	// ObjectID is the internal ID of the object.
	ObjectID string `json:"object_id"`
	// SampleID is the ID of the sample containing the object.
	SampleID string `json:"sample_id"`
	// Field is the name of the field containing the object.
	Field string `json:"field"`
	// FrameNumber is the frame containing the object, for video samples.
	FrameNumber *int `json:"frame_number,omitempty"`
}

// Description is the full state payload mirrored between a session and the
// App. The session owns exactly one Description; every public mutation
// rewrites it and pushes the complete snapshot.
type Description struct {
	// Datasets is the catalog of known dataset names, refreshed from the
	// listing collaborator before every push.
	Datasets []string `json:"datasets"`
	// Dataset is the name of the loaded dataset, or "" if none.
	Dataset string `json:"dataset,omitempty"`
	// View describes the loaded view, or "" if none. When set, Dataset is
	// always the view's owning dataset.
	View string `json:"view,omitempty"`
	// SelectedSamples holds the IDs of samples selected in the App. Order
	// is not significant.
	SelectedSamples []string `json:"selected"`
	// SelectedObjects holds the objects selected in the App, in selection
	// order.
	SelectedObjects []SelectedObject `json:"selected_objects"`
	// Filters maps filter names to their current values.
	Filters map[string]interface{} `json:"filters"`
	// CloseRequested tells the App to close. One-way: never reset.
	CloseRequested bool `json:"close"`
}

// NewDescription returns an empty Description with non-nil collections.
func NewDescription() Description {
	return Description{
		Datasets:        []string{},
		SelectedSamples: []string{},
		SelectedObjects: []SelectedObject{},
		Filters:         map[string]interface{}{},
	}
}

// Clone returns a deep copy of the description.
func (d Description) Clone() Description {
	out := d
	out.Datasets = append([]string{}, d.Datasets...)
	out.SelectedSamples = append([]string{}, d.SelectedSamples...)
	out.SelectedObjects = append([]SelectedObject{}, d.SelectedObjects...)
	out.Filters = make(map[string]interface{}, len(d.Filters))
	for k, v := range d.Filters {
		out.Filters[k] = v
	}
	return out
}

// Pusher transmits a full state snapshot to the remote App process. Pushes
// are one-way notifications; implementations define their own timeout and
// retry policy.
type Pusher interface {
	Push(namespace, attribute string, snapshot Description) error
}

// PusherFunc adapts a function to the Pusher interface.
type PusherFunc func(namespace, attribute string, snapshot Description) error

// Push implements Pusher.
func (f PusherFunc) Push(namespace, attribute string, snapshot Description) error {
	return f(namespace, attribute, snapshot)
}
