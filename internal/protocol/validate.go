package protocol

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

var (
	schemasOnce sync.Once
	schemas     map[string]*jsonschema.Schema
	schemasErr  error
)

func loadSchemas() (map[string]*jsonschema.Schema, error) {
	schemasOnce.Do(func() {
		out := map[string]*jsonschema.Schema{}
		for _, name := range []string{"hello", "act"} {
			file := "schemas/" + name + ".schema.json"
			b, err := schemaFS.ReadFile(file)
			if err != nil {
				schemasErr = err
				return
			}
			s, err := jsonschema.CompileString(file, string(b))
			if err != nil {
				schemasErr = fmt.Errorf("compile %s: %w", file, err)
				return
			}
			out[name] = s
		}
		schemas = out
	})
	return schemas, schemasErr
}

func validate(name string, msg []byte) error {
	all, err := loadSchemas()
	if err != nil {
		return err
	}
	var doc any
	dec := json.NewDecoder(bytes.NewReader(msg))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return err
	}
	return all[name].Validate(doc)
}

// DecodeHello validates a raw HELLO against its schema and decodes it.
func DecodeHello(msg []byte) (HelloMsg, error) {
	var h HelloMsg
	if err := validate("hello", msg); err != nil {
		return h, err
	}
	err := json.Unmarshal(msg, &h)
	return h, err
}

// DecodeAct validates a raw ACT against its schema and decodes it.
func DecodeAct(msg []byte) (ActMsg, error) {
	var a ActMsg
	if err := validate("act", msg); err != nil {
		return a, err
	}
	err := json.Unmarshal(msg, &a)
	return a, err
}
