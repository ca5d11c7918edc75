package references

import "slices"

// BuiltinPrefix qualifies builtin names that are used without an import.
const BuiltinPrefix = "__builtin__"

var builtinDecorators = []string{
	"__builtin__.classmethod",
	"__builtin__.staticmethod",
	"__builtin__.property",
}

var stdlibDecorators = []string{
	"abc.abstractmethod",
	"contextlib.asynccontextmanager",
	"contextlib.contextmanager",
	"dataclasses.dataclass",
	"functools.cache",
	"functools.cached_property",
	"functools.lru_cache",
	"functools.total_ordering",
	"functools.wraps",
	"typing.dataclass_transform",
	"typing.final",
	"typing.no_type_check",
	"typing.overload",
	"typing_extensions.dataclass_transform",
}

var ecosystemDecorators = []string{
	"attr.attrs",
	"attr._make.attrs",
	"clonf.clonf_click",
	"pydantic.root_validator",
	"pydantic.validator",
	"pydantic.v1.class_validators.root_validator",
	"pydantic.v1.class_validators.validator",
}

// DefaultSafeDecorators returns the decorators known not to register the
// decorated object anywhere, so they never keep it alive on their own.
func DefaultSafeDecorators() []string {
	out := slices.Concat(builtinDecorators, stdlibDecorators, ecosystemDecorators)
	slices.Sort(out)
	return out
}
