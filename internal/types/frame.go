package types

import "time"

// StripFrame represents the published state of one strip after a show
type StripFrame struct {
	Name       string `json:"name"`
	Pin        int    `json:"pin"`
	Pixels     []byte `json:"pixels"`
	Brightness int    `json:"brightness"`
	Frames     uint64 `json:"frames"`
	Dropped    uint64 `json:"dropped"`
}

// FrameSnapshot represents the full display state broadcast to clients
type FrameSnapshot struct {
	Seq       uint64       `json:"seq"`
	Strips    []StripFrame `json:"strips"`
	Timestamp time.Time    `json:"timestamp"`
}
