package peer

import (
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// Frame is one chat message on the data channel.
type Frame struct {
	From   string    `msgpack:"from"`
	Text   string    `msgpack:"text"`
	SentAt time.Time `msgpack:"sent_at"`
}

func EncodeFrame(f Frame) ([]byte, error) {
	return msgpack.Marshal(f)
}

func DecodeFrame(data []byte) (Frame, error) {
	var f Frame
	err := msgpack.Unmarshal(data, &f)
	return f, err
}
