package config

import "reflect"

// diffEvent compares two configuration values field by field at the top
// level. Non-struct values produce an event with no changed keys.
func diffEvent(oldCfg, newCfg any) Event {
	evt := Event{OldConfig: oldCfg, NewConfig: newCfg}
	if oldCfg == nil || newCfg == nil {
		return evt
	}
	ov := reflect.Indirect(reflect.ValueOf(oldCfg))
	nv := reflect.Indirect(reflect.ValueOf(newCfg))
	if ov.Kind() != reflect.Struct || nv.Kind() != reflect.Struct || ov.Type() != nv.Type() {
		return evt
	}
	for i := 0; i < ov.NumField(); i++ {
		if !ov.Type().Field(i).IsExported() {
			continue
		}
		if !reflect.DeepEqual(ov.Field(i).Interface(), nv.Field(i).Interface()) {
			evt.ChangedKeys = append(evt.ChangedKeys, ov.Type().Field(i).Name)
		}
	}
	return evt
}
