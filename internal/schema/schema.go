// Package schema loads shard descriptors from CUE.
//
// A schema directory holds one CUE package declaring shards, their
// collections and their relations:
//
//	package library
//
//	version: 1
//
//	shard: library: {
//		collection: books: {
//			entity: "book"
//			fields: {
//				title: string
//				year:  int | null
//			}
//		}
//		relation: written: {
//			parent:      "author"
//			child:       "book"
//			cardinality: "many-to-many"
//		}
//	}
//
// Field types are string, int, float (or number), bool, a list or a struct.
// A field whose type admits null is nullable. The name "id" is reserved for
// entity ids. Cardinality defaults to many-to-many; version defaults to 1
// and numbers the storage migration of the schema.
//
// Loaded shards are dynamic: collections hold model.Record values.
package schema

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/tessera/internal/model"
	"github.com/roach88/tessera/internal/value"
)

// Schema is a compiled set of shard descriptors.
type Schema struct {
	Version int
	Shards  []*model.ShardInfo
	// Files is the number of CUE files the schema was loaded from.
	Files int
}

// Error is a schema error with its source position.
type Error struct {
	Path    string
	Message string
	Pos     token.Pos
}

func (e *Error) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Path, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// ErrNoFiles is returned when a schema directory holds no CUE file.
var ErrNoFiles = errors.New("no CUE files found")

// ReservedField is the name fields may not use.
const ReservedField = "id"

var namePattern = regexp.MustCompile(`^[a-z][a-z0-9]*(_[a-z0-9]+)*$`)

// Load compiles the CUE package in dir.
func Load(dir string) (*Schema, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("schema directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", dir)
	}
	files, err := FindFiles(dir)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%s: %w", dir, ErrNoFiles)
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, fmt.Errorf("%s: no CUE instances loaded", dir)
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, formatCUEError(inst.Err)
	}
	v := ctx.BuildInstance(inst)
	s, err := Compile(v)
	if err != nil {
		return nil, err
	}
	s.Files = len(files)
	return s, nil
}

// CompileString compiles CUE source held in memory. filename only labels
// error positions.
func CompileString(src, filename string) (*Schema, error) {
	v := cuecontext.New().CompileString(src, cue.Filename(filename))
	s, err := Compile(v)
	if err != nil {
		return nil, err
	}
	s.Files = 1
	return s, nil
}

// FindFiles returns every .cue file in dir.
func FindFiles(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.cue"))
	if err != nil {
		return nil, err
	}
	return matches, nil
}

// Compile builds a schema from a CUE value. Every invalid declaration is
// reported; the errors are joined.
func Compile(v cue.Value) (*Schema, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	s := &Schema{Version: 1}

	if vv := v.LookupPath(cue.ParsePath("version")); vv.Exists() {
		n, err := vv.Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		if n < 1 {
			return nil, &Error{Path: "version", Message: "must be positive", Pos: vv.Pos()}
		}
		s.Version = int(n)
	}

	shardsVal := v.LookupPath(cue.ParsePath("shard"))
	if !shardsVal.Exists() {
		return nil, &Error{Path: "shard", Message: "at least one shard is required", Pos: v.Pos()}
	}
	iter, err := shardsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var errs []error
	for iter.Next() {
		info, shardErrs := compileShard(iter.Label(), iter.Value())
		if len(shardErrs) > 0 {
			errs = append(errs, shardErrs...)
			continue
		}
		s.Shards = append(s.Shards, info)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	if len(s.Shards) == 0 {
		return nil, &Error{Path: "shard", Message: "at least one shard is required", Pos: shardsVal.Pos()}
	}
	return s, nil
}

// Shard returns a shard descriptor by name.
func (s *Schema) Shard(name string) (*model.ShardInfo, bool) {
	for _, info := range s.Shards {
		if info.Name == name {
			return info, true
		}
	}
	return nil, false
}

// Prototypes returns an empty dynamic shard per descriptor.
func (s *Schema) Prototypes() []model.Shard {
	out := make([]model.Shard, len(s.Shards))
	for i, info := range s.Shards {
		out[i] = model.NewDynamicShard(info)
	}
	return out
}

// Registry returns a registry of the schema's shards.
func (s *Schema) Registry() (*model.Registry, error) {
	return model.NewRegistry(s.Prototypes()...)
}

// NewModel returns an empty model holding every shard of the schema.
func (s *Schema) NewModel() (*model.Model, error) {
	return model.New(s.Prototypes()...)
}

func compileShard(name string, v cue.Value) (*model.ShardInfo, []error) {
	path := "shard." + name
	var errs []error
	if !namePattern.MatchString(name) {
		errs = append(errs, &Error{Path: path, Message: "invalid shard name", Pos: v.Pos()})
	}

	var members []model.MemberInfo
	seen := map[string]bool{}
	add := func(m model.MemberInfo, pos token.Pos) {
		if seen[m.MemberName()] {
			errs = append(errs, &Error{Path: path, Message: fmt.Sprintf("duplicate member %q", m.MemberName()), Pos: pos})
			return
		}
		seen[m.MemberName()] = true
		members = append(members, m)
	}

	if cv := v.LookupPath(cue.ParsePath("collection")); cv.Exists() {
		iter, err := cv.Fields()
		if err != nil {
			return nil, []error{formatCUEError(err)}
		}
		for iter.Next() {
			info, err := compileCollection(name, iter.Label(), iter.Value())
			if err != nil {
				errs = append(errs, err)
				continue
			}
			add(info, iter.Value().Pos())
		}
	}
	if rv := v.LookupPath(cue.ParsePath("relation")); rv.Exists() {
		iter, err := rv.Fields()
		if err != nil {
			return nil, []error{formatCUEError(err)}
		}
		for iter.Next() {
			info, err := compileRelation(name, iter.Label(), iter.Value())
			if err != nil {
				errs = append(errs, err)
				continue
			}
			add(info, iter.Value().Pos())
		}
	}
	if len(members) == 0 && len(errs) == 0 {
		errs = append(errs, &Error{Path: path, Message: "a shard needs at least one collection or relation", Pos: v.Pos()})
	}
	if len(errs) > 0 {
		return nil, errs
	}
	return model.NewShardInfo(name, members...), nil
}

func compileCollection(shard, name string, v cue.Value) (*model.CollectionInfo, error) {
	path := fmt.Sprintf("shard.%s.collection.%s", shard, name)
	if !namePattern.MatchString(name) {
		return nil, &Error{Path: path, Message: "invalid collection name", Pos: v.Pos()}
	}
	entity, err := requiredString(v, "entity", path)
	if err != nil {
		return nil, err
	}

	var fields []model.FieldInfo
	if fv := v.LookupPath(cue.ParsePath("fields")); fv.Exists() {
		iter, err := fv.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			fname := iter.Label()
			fpath := path + ".fields." + fname
			if fname == ReservedField {
				return nil, &Error{Path: fpath, Message: "field name \"id\" is reserved", Pos: iter.Value().Pos()}
			}
			if !namePattern.MatchString(fname) {
				return nil, &Error{Path: fpath, Message: "invalid field name", Pos: iter.Value().Pos()}
			}
			kind, nullable, err := fieldKind(iter.Value(), fpath)
			if err != nil {
				return nil, err
			}
			fields = append(fields, model.FieldInfo{Name: fname, Kind: kind, Nullable: nullable})
		}
	}
	return model.NewCollectionInfo(shard, name, model.EntityType(entity), fields, model.DecodeRecord), nil
}

func compileRelation(shard, name string, v cue.Value) (*model.RelationInfo, error) {
	path := fmt.Sprintf("shard.%s.relation.%s", shard, name)
	if !namePattern.MatchString(name) {
		return nil, &Error{Path: path, Message: "invalid relation name", Pos: v.Pos()}
	}
	parent, err := requiredString(v, "parent", path)
	if err != nil {
		return nil, err
	}
	child, err := requiredString(v, "child", path)
	if err != nil {
		return nil, err
	}
	card := model.ManyToMany
	if cv := v.LookupPath(cue.ParsePath("cardinality")); cv.Exists() {
		s, err := cv.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		if card, err = model.ParseCardinality(s); err != nil {
			return nil, &Error{Path: path + ".cardinality", Message: err.Error(), Pos: cv.Pos()}
		}
	}
	return &model.RelationInfo{
		Shard:       shard,
		Name:        name,
		Parent:      model.EntityType(parent),
		Child:       model.EntityType(child),
		Cardinality: card,
	}, nil
}

func requiredString(v cue.Value, field, path string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return "", &Error{Path: path + "." + field, Message: field + " is required", Pos: v.Pos()}
	}
	s, err := fv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	if !namePattern.MatchString(s) {
		return "", &Error{Path: path + "." + field, Message: fmt.Sprintf("invalid entity type %q", s), Pos: fv.Pos()}
	}
	return s, nil
}

// fieldKind maps a CUE type to a value kind. A type admitting null is
// nullable.
func fieldKind(v cue.Value, path string) (value.Kind, bool, error) {
	k := v.IncompleteKind()
	nullable := k&cue.NullKind != 0 && k != cue.NullKind
	k &^= cue.NullKind
	switch k {
	case cue.StringKind:
		return value.KindString, nullable, nil
	case cue.IntKind:
		return value.KindInt, nullable, nil
	case cue.FloatKind, cue.NumberKind:
		return value.KindFloat, nullable, nil
	case cue.BoolKind:
		return value.KindBool, nullable, nil
	case cue.ListKind:
		return value.KindArray, nullable, nil
	case cue.StructKind:
		return value.KindObject, nullable, nil
	default:
		return value.KindNull, false, &Error{
			Path:    path,
			Message: fmt.Sprintf("unsupported type kind: %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		return &Error{Path: "cue", Message: first.Error(), Pos: positions[0]}
	}
	return err
}
