package upstream

import (
	"bytes"
	"encoding/json"
	"fmt"

	"pharos.xyz/statschecker/pkg/apperror"
)

// envelope is the wrapper every Pharos API response comes in. Code 0 is success.
type envelope[T any] struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data T      `json:"data"`
}

type ProfileData struct {
	UserInfo UserInfo `json:"user_info"`
}

type UserInfo struct {
	TotalPoints int64       `json:"TotalPoints"`
	CreateTime  *FlexString `json:"CreateTime"`
}

type TasksData struct {
	UserTasks []UserTask `json:"user_tasks"`
}

type UserTask struct {
	TaskID        int `json:"TaskId"`
	CompleteTimes int `json:"CompleteTimes"`
}

// UserPayload is the raw pair of responses for one wallet.
type UserPayload struct {
	Profile ProfileData
	Tasks   TasksData
}

// FlexString accepts a JSON string or number. CreateTime has been seen as both.
type FlexString string

func (f *FlexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("CreateTime: %w", err)
	}
	*f = FlexString(n.String())
	return nil
}

// DataError is an upstream reply that parsed but carried a non-zero code. It is
// not retried.
type DataError struct {
	Path string
	Code int
	Msg  string
}

func (e *DataError) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("%s: upstream code %d: %s", e.Path, e.Code, e.Msg)
	}
	return fmt.Sprintf("%s: upstream code %d", e.Path, e.Code)
}

func (e *DataError) Unwrap() error {
	return apperror.ErrUpstreamData
}
