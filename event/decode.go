package event

import (
	"github.com/mitchellh/mapstructure"
)

// Decode maps a generic content value (RawContent, RawMessageContent or
// any map from a passthrough decode) onto a caller-supplied typed struct,
// honoring json tags.
func Decode(input interface{}, output interface{}) error {
	config := &mapstructure.DecoderConfig{
		Metadata: nil,
		Result:   output,
		TagName:  "json",
	}

	decoder, err := mapstructure.NewDecoder(config)
	if err != nil {
		return err
	}

	return decoder.Decode(input)
}
