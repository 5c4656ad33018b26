package config

import (
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// CustomHooks replaces viper's default decode hook, so the defaults (durations and comma separated slices) are
// composed back in alongside ours.
var CustomHooks = []viper.DecoderConfigOption{
	viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		mapstructure.TextUnmarshallerHookFunc(),
	)),
}
