package event

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Size はカーネルのinput_event構造体のバイト数
var Size = binary.Size(Event{})

// ReadEvent はデバイスから1イベントを読み込む
func ReadEvent(r io.Reader) (Event, error) {
	var e Event
	buf := make([]byte, Size)
	if _, err := io.ReadFull(r, buf); err != nil {
		return e, err
	}
	if err := binary.Read(bytes.NewReader(buf), binary.LittleEndian, &e); err != nil {
		return e, fmt.Errorf("イベントの解析に失敗しました: %w", err)
	}
	return e, nil
}

// WriteEvents はイベントをまとめて書き込む
func WriteEvents(w io.Writer, events []Event) error {
	buf := new(bytes.Buffer)
	for _, ev := range events {
		if err := binary.Write(buf, binary.LittleEndian, ev); err != nil {
			return fmt.Errorf("イベントをバッファに書き込むのに失敗しました: %w", err)
		}
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("イベントの書き込みに失敗しました: %w", err)
	}
	return nil
}
