package protocol

import (
	"encoding/json"
	"fmt"
)

type envelope struct {
	V    int `json:"v"`
	Type Tag `json:"type"`
}

// Encode serializes a command into its wire envelope: the command's own
// fields plus "v" and "type".
func Encode(c Command) ([]byte, error) {
	body, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", c.CommandTag(), err)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("flatten %s payload: %w", c.CommandTag(), err)
	}
	if fields == nil {
		fields = make(map[string]json.RawMessage, 2)
	}

	v, _ := json.Marshal(Version)
	tag, _ := json.Marshal(c.CommandTag())
	fields["v"] = v
	fields["type"] = tag

	return json.Marshal(fields)
}

// Decode parses a wire message into a typed command. A tag this peer
// does not know yields Unknown and a nil error, preserving forward
// compatibility with newer command sets.
func Decode(data []byte) (Command, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode command envelope: %w", err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("decode command: missing type tag")
	}

	target := commandByTag(env.Type)
	if target == nil {
		return Unknown{Type: env.Type, Raw: append(json.RawMessage(nil), data...)}, nil
	}
	if err := json.Unmarshal(data, target); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", env.Type, err)
	}
	return deref(target), nil
}

func commandByTag(tag Tag) Command {
	switch tag {
	case TagInfoDeviceName:
		return &InfoDeviceName{}
	case TagInfoCameraType:
		return &InfoCameraType{}
	case TagBatteryStatus:
		return &BatteryStatus{}
	case TagNotification:
		return &Notification{}
	case TagErrorAuth:
		return &ErrorAuth{}
	case TagErrorBusy:
		return &ErrorBusy{}
	case TagFlash:
		return &Flash{}
	case TagLullaby:
		return &Lullaby{}
	case TagQuality:
		return &SetQuality{}
	case TagCamera:
		return &SetCamera{}
	case TagSensitivity:
		return &SetSensitivity{}
	case TagMic:
		return &SetMic{}
	case TagWatchdogRefresh:
		return &WatchdogRefresh{}
	default:
		return nil
	}
}

func deref(c Command) Command {
	switch v := c.(type) {
	case *InfoDeviceName:
		return *v
	case *InfoCameraType:
		return *v
	case *BatteryStatus:
		return *v
	case *Notification:
		return *v
	case *ErrorAuth:
		return *v
	case *ErrorBusy:
		return *v
	case *Flash:
		return *v
	case *Lullaby:
		return *v
	case *SetQuality:
		return *v
	case *SetCamera:
		return *v
	case *SetSensitivity:
		return *v
	case *SetMic:
		return *v
	case *WatchdogRefresh:
		return *v
	default:
		return c
	}
}
