package portal

// RemoteEvent is one entry of the remote change-event feed.
type RemoteEvent struct {
	ID         int64          `json:"id"`
	ObjectID   string         `json:"object_id"`
	EventType  string         `json:"event_type"`
	ModuleName string         `json:"module_name"`
	BeanData   map[string]any `json:"bean_data,omitempty"`
}

// BeanResponse is the payload returned by the beans endpoint. Each result
// carries the remote object's properties.
type BeanResponse struct {
	Result []Bean `json:"result"`
}

// Bean is one remote object snapshot.
type Bean struct {
	ObjectID   string         `json:"object_id"`
	Properties map[string]any `json:"properties"`
}

// ConnectorConfig is the remote connector configuration, consulted for the
// resolved module name and the schema fingerprint.
type ConnectorConfig struct {
	ModuleConfig ModuleConfig `json:"moduleConfig"`
}

// ModuleConfig is the per-module section of the connector configuration.
type ModuleConfig struct {
	ModuleName string `json:"module_name"`
	ConfigHash string `json:"config_hash"`
}

// ResponseMetadata captures the diagnostics of the most recent API call.
// Persisted on events for operator inspection.
type ResponseMetadata struct {
	Headers  string
	URL      string
	Response string
	Payload  string
}
