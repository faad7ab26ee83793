package common

import (
	"encoding/json"
	"io"
)

// WriteJSON writes v as indented JSON, followed by a newline.
func WriteJSON(w io.Writer, v any) error {
	buf, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return err
	}
	_, err = w.Write(append(buf, '\n'))
	return err
}
