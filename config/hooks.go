package config

import (
	"reflect"

	"github.com/go-viper/mapstructure/v2"

	"github.com/jonwraymond/offlineworker/push"
)

var timeOfDayType = reflect.TypeFor[push.TimeOfDay]()

// DecodeHook converts "HH:MM" strings to push.TimeOfDay and keeps viper's
// default duration and slice conversions.
func DecodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.DecodeHookFuncType(func(from, to reflect.Type, data any) (any, error) {
			if to != timeOfDayType || from.Kind() != reflect.String {
				return data, nil
			}
			return push.ParseTimeOfDay(data.(string))
		}),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
}
