package internal

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/santhosh-tekuri/jsonschema/v6/kind"
)

//go:embed commands.schema.json
var commandsSchema []byte

const (
	commandsSchemaURL = "commands.schema.json"
	// schemaMessage 外層 {type, args}
	schemaMessage = "message"
)

// schemas 啟動時編譯一次，之後只讀
var schemas = mustCompileSchemas(
	schemaMessage,
	TypeJoin,
	TypeAppendPeerProperties,
	TypeAppendRoomProperties,
	TypeDiscoverRooms,
	TypeSetBlob,
	TypeGetBlob,
	TypePing,
	TypeObserve,
	TypeUnobserve,
)

func mustCompileSchemas(names ...string) map[string]*jsonschema.Schema {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(commandsSchema))
	if err != nil {
		panic(fmt.Sprintf("解析指令 schema 失敗: %v", err))
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource(commandsSchemaURL, doc); err != nil {
		panic(fmt.Sprintf("載入指令 schema 失敗: %v", err))
	}

	out := make(map[string]*jsonschema.Schema, len(names))
	for _, name := range names {
		sch, err := c.Compile(commandsSchemaURL + "#/$defs/" + name)
		if err != nil {
			panic(fmt.Sprintf("編譯 %s schema 失敗: %v", name, err))
		}
		out[name] = sch
	}
	return out
}

// validateJSON 先以 schema 驗證 data，通過後才解到 out
func validateJSON(command, schema string, data []byte, out any) error {
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return &ValidationError{Command: command, Reason: "不是合法的 JSON", Err: err}
	}

	if err := schemas[schema].Validate(inst); err != nil {
		var verr *jsonschema.ValidationError
		if errors.As(err, &verr) {
			return newValidationError(command, verr)
		}
		return &ValidationError{Command: command, Reason: err.Error(), Err: err}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return &ValidationError{Command: command, Reason: "無法解碼", Err: err}
	}
	return nil
}

// newValidationError 取第一個最深層的錯誤，欄位路徑以 "." 連接
func newValidationError(command string, err *jsonschema.ValidationError) *ValidationError {
	leaf := err
	for len(leaf.Causes) > 0 {
		leaf = leaf.Causes[0]
	}

	path := append([]string(nil), leaf.InstanceLocation...)
	reason := "格式錯誤"
	switch k := leaf.ErrorKind.(type) {
	case *kind.Required:
		if len(k.Missing) > 0 {
			path = append(path, k.Missing[0])
		}
		reason = "必填"
	case *kind.Type:
		reason = fmt.Sprintf("應為 %s，收到 %s", strings.Join(k.Want, " 或 "), k.Got)
	case *kind.Minimum, *kind.Maximum:
		reason = "超出 uint32 範圍"
	}

	return &ValidationError{
		Command: command,
		Field:   strings.Join(path, "."),
		Reason:  reason,
		Err:     err,
	}
}
