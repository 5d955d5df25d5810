package openapi

type ParamIn string

const (
	InPath  ParamIn = "path"
	InQuery ParamIn = "query"
)

type Parameter struct {
	Name     string  `json:"name" yaml:"name"`
	In       ParamIn `json:"in" yaml:"in"`
	Required bool    `json:"required" yaml:"required"`
	Schema   any     `json:"schema" yaml:"schema"`
}
