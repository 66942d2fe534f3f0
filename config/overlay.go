package config

import (
	"encoding"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

var (
	decoderType         = reflect.TypeOf((*envconfig.Decoder)(nil)).Elem()
	setterType          = reflect.TypeOf((*envconfig.Setter)(nil)).Elem()
	textUnmarshalerType = reflect.TypeOf((*encoding.TextUnmarshaler)(nil)).Elem()
)

// overlayEnv copies from src into dst every field whose environment variable
// is explicitly set. Keys follow envconfig's naming: PREFIX_TAG, with the
// bare tag as fallback; nested structs without a tag extend the prefix with
// the field name. split_words is not supported.
func overlayEnv(prefix string, dst, src reflect.Value) {
	t := dst.Type()
	for i := 0; i < t.NumField(); i++ {
		ft := t.Field(i)
		if !ft.IsExported() || isTrue(ft.Tag.Get("ignored")) {
			continue
		}

		df, sf := dst.Field(i), src.Field(i)
		tag := strings.ToUpper(ft.Tag.Get("envconfig"))
		key := ft.Name
		if tag != "" {
			key = tag
		}
		if prefix != "" {
			key = prefix + "_" + key
		}
		key = strings.ToUpper(key)

		if sf.Kind() == reflect.Ptr && sf.Type().Elem().Kind() == reflect.Struct {
			if sf.IsNil() {
				continue
			}
			if df.IsNil() {
				df.Set(reflect.New(df.Type().Elem()))
			}
			df, sf = df.Elem(), sf.Elem()
		}

		if isNested(sf) {
			inner := prefix
			if !ft.Anonymous {
				inner = key
			}
			overlayEnv(inner, df, sf)
			continue
		}

		if envSet(key) || (tag != "" && envSet(tag)) {
			df.Set(sf)
		}
	}
}

func isNested(v reflect.Value) bool {
	if v.Kind() != reflect.Struct {
		return false
	}
	ptr := reflect.PointerTo(v.Type())
	return !ptr.Implements(decoderType) && !ptr.Implements(setterType) && !ptr.Implements(textUnmarshalerType)
}

func envSet(key string) bool {
	_, ok := os.LookupEnv(key)
	return ok
}

func isTrue(s string) bool {
	b, _ := strconv.ParseBool(s)
	return b
}
