package shape

import (
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"
)

// LoadError is a shape definition error with its CUE source position.
type LoadError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// LoadDir loads every shape declared under the top-level "shape" struct of
// the CUE package in dir:
//
//	shape: review: {
//		account: "Review"
//		key:     "slug"
//		owner:   "author"
//		fields: [
//			{name: "author", kind: "pubkey"},
//			{name: "slug", kind: "string", max_len: 16},
//			{name: "stars", kind: "u8", min: 1, max: 10},
//		]
//	}
//
// Shapes are returned in declaration order and have passed Check.
func LoadDir(dir string) ([]Shape, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("shapes directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("shapes directory: not a directory: %s", dir)
	}
	matches, err := filepath.Glob(filepath.Join(dir, "*.cue"))
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("no CUE files found in %s", dir)
	}

	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, fmt.Errorf("no CUE instances loaded from %s", dir)
	}
	if err := instances[0].Err; err != nil {
		return nil, fmt.Errorf("loading CUE files: %w", err)
	}

	value := cuecontext.New().BuildInstance(instances[0])
	if err := value.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return CompileAll(value)
}

// CompileAll compiles every entry of the "shape" struct in v.
func CompileAll(v cue.Value) ([]Shape, error) {
	shapesVal := v.LookupPath(cue.ParsePath("shape"))
	if !shapesVal.Exists() {
		return nil, nil
	}
	iter, err := shapesVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var shapes []Shape
	for iter.Next() {
		s, err := Compile(iter.Value())
		if err != nil {
			return nil, fmt.Errorf("shape.%s: %w", iter.Label(), err)
		}
		shapes = append(shapes, s)
	}
	return shapes, nil
}

// Compile parses one shape struct. The shape name is the struct's label.
func Compile(v cue.Value) (Shape, error) {
	if err := v.Err(); err != nil {
		return Shape{}, formatCUEError(err)
	}

	var s Shape
	if sels := v.Path().Selectors(); len(sels) > 0 {
		s.Name = sels[len(sels)-1].String()
	}

	var err error
	if s.Account, err = requiredString(v, "account"); err != nil {
		return Shape{}, err
	}
	if s.KeyField, err = requiredString(v, "key"); err != nil {
		return Shape{}, err
	}
	if s.OwnerField, err = requiredString(v, "owner"); err != nil {
		return Shape{}, err
	}

	fieldsVal := v.LookupPath(cue.ParsePath("fields"))
	if !fieldsVal.Exists() {
		return Shape{}, &LoadError{Field: "fields", Message: "fields are required", Pos: v.Pos()}
	}
	list, err := fieldsVal.List()
	if err != nil {
		return Shape{}, formatCUEError(err)
	}
	for list.Next() {
		f, err := compileField(list.Value())
		if err != nil {
			return Shape{}, err
		}
		s.Fields = append(s.Fields, f)
	}

	if err := s.Check(); err != nil {
		return Shape{}, &LoadError{Field: "shape", Message: err.Error(), Pos: v.Pos()}
	}
	return s, nil
}

func compileField(v cue.Value) (Field, error) {
	var f Field
	var err error
	if f.Name, err = requiredString(v, "name"); err != nil {
		return Field{}, err
	}
	kind, err := requiredString(v, "kind")
	if err != nil {
		return Field{}, err
	}
	f.Kind = Kind(kind)

	if ml := v.LookupPath(cue.ParsePath("max_len")); ml.Exists() {
		n, err := ml.Int64()
		if err != nil {
			return Field{}, formatCUEError(err)
		}
		f.MaxLen = int(n)
	}

	minVal := v.LookupPath(cue.ParsePath("min"))
	maxVal := v.LookupPath(cue.ParsePath("max"))
	if minVal.Exists() != maxVal.Exists() {
		return Field{}, &LoadError{
			Field:   f.Name,
			Message: "min and max must be given together",
			Pos:     v.Pos(),
		}
	}
	if minVal.Exists() {
		if f.Min, err = minVal.Int64(); err != nil {
			return Field{}, formatCUEError(err)
		}
		if f.Max, err = maxVal.Int64(); err != nil {
			return Field{}, formatCUEError(err)
		}
		f.Ranged = true
	}
	return f, nil
}

func requiredString(v cue.Value, name string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(name))
	if !fv.Exists() {
		return "", &LoadError{Field: name, Message: name + " is required", Pos: v.Pos()}
	}
	s, err := fv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	if pos := errors.Positions(first); len(pos) > 0 {
		return &LoadError{Field: "cue", Message: first.Error(), Pos: pos[0]}
	}
	return err
}
