package progress

// Task is the observable state of one upload. It is stored as a whole on
// every write.
type Task struct {
	ID               string  `json:"id"`
	Filename         string  `json:"filename"`
	TotalSize        int64   `json:"totalSize"`
	BytesTransferred int64   `json:"bytesTransferred"`
	Progress         float64 `json:"progress"`
	Completed        bool    `json:"completed"`
	Success          bool    `json:"success"`
	Message          string  `json:"message"`
	CreatedAt        int64   `json:"createdAt"` // unix millis
}

func clamp(p float64) float64 {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	default:
		return p
	}
}

// percentOf returns bytes/total as a percentage capped at 100.
func percentOf(bytes, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return clamp(float64(bytes) * 100 / float64(total))
}
