package manifest

import (
	"encoding/json"
	"fmt"
)

// Listener is a callback function that receives events during a poll.
type Listener func(fmt.Stringer)

func jsonString(v interface{}) string {
	b, _ := json.Marshal(map[string]interface{}{
		fmt.Sprintf("%T", v): v,
	})
	return string(b)
}

// EventManifestLoaded is emitted once the resolvers of a manifest are built.
type EventManifestLoaded struct {
	Path      string `json:"path,omitempty"`
	Resolvers int    `json:"resolvers"`
}

func (e EventManifestLoaded) String() string { return jsonString(e) }

// EventResolverSuccess is emitted for each resolver that returned versions.
type EventResolverSuccess struct {
	Resolver   string   `json:"resolver,omitempty"`
	Versions   []string `json:"versions,omitempty"`
	DurationMS int64    `json:"duration_ms,omitempty"`
}

func (e EventResolverSuccess) String() string { return jsonString(e) }

// EventResolverFailure is emitted for each resolver that failed.
type EventResolverFailure struct {
	Resolver string `json:"resolver,omitempty"`
	Class    string `json:"class,omitempty"`
	Error    string `json:"error,omitempty"`
}

func (e EventResolverFailure) String() string { return jsonString(e) }

// EventPollComplete is emitted when every resolver has finished.
type EventPollComplete struct {
	Resolvers int `json:"resolvers"`
	Failures  int `json:"failures"`
}

func (e EventPollComplete) String() string { return jsonString(e) }
