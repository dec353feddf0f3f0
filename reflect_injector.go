package graft

import (
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// In is a marker type that should be embedded in structs to indicate
// they are parameter objects. Fields of the struct are resolved as
// separate constructor dependencies.
//
// Example:
//
//	type ServiceParams struct {
//	    graft.In
//
//	    DB     *Database
//	    Logger *Logger `optional:"true"`
//	    Cache  Cache   `name:"redis"`
//	}
type In struct{}

var (
	inType    = reflect.TypeOf(In{})
	errorType = reflect.TypeOf((*error)(nil)).Elem()
)

// injectMethodPrefix selects the methods called during member injection.
const injectMethodPrefix = "Inject"

// constructorInfo holds analyzed constructor metadata
type constructorInfo struct {
	fn        reflect.Value
	fnType    reflect.Type
	result    reflect.Type
	params    []paramInfo
	hasError  bool
	preferred bool
}

// paramInfo describes a constructor parameter
type paramInfo struct {
	typ      reflect.Type
	name     string // From `name:"..."` tag
	optional bool   // From `optional:"true"` tag
	field    int    // Struct field index inside an In struct
	isIn     bool
	inFields []paramInfo
}

// typeInfo is the memoized injection metadata of one concrete type.
type typeInfo struct {
	ctor     *constructorInfo
	ctorDeps []InjectableInfo
	fields   []InjectableInfo
	fieldIdx []int
	methods  []MethodInfo
}

// ReflectInjector is the default TypeIntrospector and Instantiator.
//
// Constructors are registered explicitly with RegisterConstructor; a type
// without one is allocated as its zero value. Members are discovered from
// struct tags on pointer-to-struct types:
//
//	type Service struct {
//	    Log   *Logger `inject:""`
//	    Cache Cache   `inject:"redis" optional:"true"`
//	}
//
// and from methods whose name starts with Inject. Metadata is analyzed once
// per type and cached.
type ReflectInjector struct {
	ctors map[reflect.Type][]*constructorInfo
	infos map[reflect.Type]*typeInfo
	mu    sync.RWMutex
}

// NewReflectInjector creates an injector with no registered constructors.
func NewReflectInjector() *ReflectInjector {
	return &ReflectInjector{
		ctors: make(map[reflect.Type][]*constructorInfo),
		infos: make(map[reflect.Type]*typeInfo),
	}
}

// RegisterConstructor registers fn as a constructor for its first result
// type. fn may take In structs and may return an error as its last result.
// When a type has several constructors exactly one must be preferred.
func (r *ReflectInjector) RegisterConstructor(fn any, preferred bool) error {
	info, err := analyzeConstructor(fn)
	if err != nil {
		return err
	}

	info.preferred = preferred

	r.mu.Lock()
	r.ctors[info.result] = append(r.ctors[info.result], info)
	delete(r.infos, info.result)
	r.mu.Unlock()

	return nil
}

// Invalidate drops the cached metadata of t, or of every type when t is nil.
func (r *ReflectInjector) Invalidate(t reflect.Type) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t == nil {
		r.infos = make(map[reflect.Type]*typeInfo)

		return
	}

	delete(r.infos, t)
}

// HasConstructor reports whether a constructor is registered for t.
func (r *ReflectInjector) HasConstructor(t reflect.Type) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.ctors[t]) > 0
}

func (r *ReflectInjector) ConstructorDependencies(concrete reflect.Type) ([]InjectableInfo, error) {
	info, err := r.typeInfo(concrete)
	if err != nil {
		return nil, err
	}

	return info.ctorDeps, nil
}

func (r *ReflectInjector) FieldDependencies(concrete reflect.Type) ([]InjectableInfo, error) {
	info, err := r.typeInfo(concrete)
	if err != nil {
		return nil, err
	}

	return info.fields, nil
}

func (r *ReflectInjector) MethodDependencies(concrete reflect.Type) ([]MethodInfo, error) {
	info, err := r.typeInfo(concrete)
	if err != nil {
		return nil, err
	}

	return info.methods, nil
}

// Construct calls the registered constructor of concrete with args, which are
// aligned with ConstructorDependencies. A nil arg passes the zero value.
func (r *ReflectInjector) Construct(concrete reflect.Type, args []any) (any, error) {
	info, err := r.typeInfo(concrete)
	if err != nil {
		return nil, err
	}

	if info.ctor == nil {
		if len(args) > 0 {
			return nil, errors.Errorf("%s has no constructor but %d arguments were given", concrete, len(args))
		}

		return allocate(concrete)
	}

	if len(args) != len(info.ctorDeps) {
		return nil, errors.Errorf("constructor of %s takes %d arguments, got %d", concrete, len(info.ctorDeps), len(args))
	}

	in := make([]reflect.Value, 0, len(info.ctor.params))
	next := 0

	for _, p := range info.ctor.params {
		if !p.isIn {
			in = append(in, valueOf(p.typ, args[next]))
			next++

			continue
		}

		structType := p.typ
		if structType.Kind() == reflect.Ptr {
			structType = structType.Elem()
		}

		sv := reflect.New(structType)
		for _, f := range p.inFields {
			sv.Elem().Field(f.field).Set(valueOf(f.typ, args[next]))
			next++
		}

		if p.typ.Kind() == reflect.Ptr {
			in = append(in, sv)
		} else {
			in = append(in, sv.Elem())
		}
	}

	out := info.ctor.fn.Call(in)

	if info.ctor.hasError {
		if errVal := out[len(out)-1]; !errVal.IsNil() {
			return nil, errors.Wrapf(errVal.Interface().(error), "constructor of %s", concrete)
		}
	}

	return out[0].Interface(), nil
}

// InjectMembers sets the tagged fields of instance and calls its inject
// methods with the given values.
func (r *ReflectInjector) InjectMembers(instance any, values MemberValues) error {
	if instance == nil {
		return errors.New("cannot inject members into nil")
	}

	info, err := r.typeInfo(reflect.TypeOf(instance))
	if err != nil {
		return err
	}

	if len(info.fields) == 0 && len(info.methods) == 0 {
		return nil
	}

	v := reflect.ValueOf(instance)
	if v.Kind() == reflect.Ptr && v.IsNil() {
		return errors.Errorf("cannot inject members into nil %s", v.Type())
	}

	for i, fieldVal := range values.Fields {
		if i >= len(info.fieldIdx) {
			return errors.Errorf("%s has %d injectable fields, got %d values", v.Type(), len(info.fieldIdx), len(values.Fields))
		}

		if fieldVal == nil || isMarker(fieldVal) {
			continue
		}

		v.Elem().Field(info.fieldIdx[i]).Set(valueOf(info.fields[i].Type, fieldVal))
	}

	for i, args := range values.Methods {
		if i >= len(info.methods) {
			return errors.Errorf("%s has %d inject methods, got %d value sets", v.Type(), len(info.methods), len(values.Methods))
		}

		m := info.methods[i]
		in := make([]reflect.Value, len(args))

		for j, a := range args {
			in[j] = valueOf(m.Params[j].Type, a)
		}

		out := v.MethodByName(m.Name).Call(in)
		if len(out) == 1 && !out[0].IsNil() {
			return errors.Wrapf(out[0].Interface().(error), "%s.%s", v.Type(), m.Name)
		}
	}

	return nil
}

func (r *ReflectInjector) typeInfo(t reflect.Type) (*typeInfo, error) {
	r.mu.RLock()
	info, ok := r.infos[t]
	r.mu.RUnlock()

	if ok {
		return info, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if info, ok = r.infos[t]; ok {
		return info, nil
	}

	info, err := r.analyzeLocked(t)
	if err != nil {
		return nil, err
	}

	r.infos[t] = info

	return info, nil
}

func (r *ReflectInjector) analyzeLocked(t reflect.Type) (*typeInfo, error) {
	info := &typeInfo{}

	ctor, err := selectConstructor(t, r.ctors[t])
	if err != nil {
		return nil, err
	}

	if ctor != nil {
		info.ctor = ctor
		info.ctorDeps = ctor.dependencies()
	}

	if t.Kind() != reflect.Ptr || t.Elem().Kind() != reflect.Struct {
		return info, nil
	}

	st := t.Elem()
	for i := 0; i < st.NumField(); i++ {
		field := st.Field(i)

		id, tagged := field.Tag.Lookup("inject")
		if !tagged {
			continue
		}

		if !field.IsExported() {
			return nil, newInvalidBindingError(t, "field %s.%s is tagged for injection but not exported", st.Name(), field.Name)
		}

		dep := InjectableInfo{
			Type:       field.Type,
			Optional:   strings.EqualFold(field.Tag.Get("optional"), "true"),
			MemberName: field.Name,
		}
		if id != "" {
			dep.Identifier = id
		}

		info.fields = append(info.fields, dep)
		info.fieldIdx = append(info.fieldIdx, i)
	}

	for i := 0; i < t.NumMethod(); i++ {
		m := t.Method(i)
		if !strings.HasPrefix(m.Name, injectMethodPrefix) {
			continue
		}

		mt := m.Type
		if mt.NumOut() > 1 || (mt.NumOut() == 1 && mt.Out(0) != errorType) {
			return nil, newInvalidBindingError(t, "inject method %s must return nothing or an error", m.Name)
		}

		mi := MethodInfo{Name: m.Name}
		for j := 1; j < mt.NumIn(); j++ {
			mi.Params = append(mi.Params, InjectableInfo{Type: mt.In(j), MemberName: m.Name})
		}

		info.methods = append(info.methods, mi)
	}

	return info, nil
}

func selectConstructor(t reflect.Type, ctors []*constructorInfo) (*constructorInfo, error) {
	switch len(ctors) {
	case 0:
		return nil, nil
	case 1:
		return ctors[0], nil
	}

	var chosen *constructorInfo

	for _, c := range ctors {
		if !c.preferred {
			continue
		}

		if chosen != nil {
			return nil, newInvalidBindingError(t, "found multiple preferred constructors for %s", t)
		}

		chosen = c
	}

	if chosen == nil {
		return nil, newInvalidBindingError(t,
			"found %d constructors for %s; mark exactly one as preferred", len(ctors), t)
	}

	return chosen, nil
}

// analyzeConstructor inspects a constructor function and extracts its dependency
// information for automatic resolution.
func analyzeConstructor(constructor any) (*constructorInfo, error) {
	if constructor == nil {
		return nil, errors.New("constructor must be a function")
	}

	fnValue := reflect.ValueOf(constructor)
	fnType := fnValue.Type()

	if fnType.Kind() != reflect.Func {
		return nil, errors.New("constructor must be a function")
	}

	info := &constructorInfo{
		fn:     fnValue,
		fnType: fnType,
	}

	switch {
	case fnType.NumOut() == 1 && fnType.Out(0) != errorType:
	case fnType.NumOut() == 2 && fnType.Out(1) == errorType:
		info.hasError = true
	default:
		return nil, errors.Errorf("constructor %s must return a value and optionally an error", fnType)
	}

	info.result = fnType.Out(0)

	for i := 0; i < fnType.NumIn(); i++ {
		param, err := analyzeParam(fnType.In(i))
		if err != nil {
			return nil, errors.Wrapf(err, "parameter %d", i)
		}

		info.params = append(info.params, param)
	}

	return info, nil
}

// analyzeParam analyzes a single parameter type
func analyzeParam(t reflect.Type) (paramInfo, error) {
	param := paramInfo{typ: t}

	if !isInStruct(t) {
		return param, nil
	}

	param.isIn = true

	st := t
	if st.Kind() == reflect.Ptr {
		st = st.Elem()
	}

	for i := 0; i < st.NumField(); i++ {
		field := st.Field(i)

		// Skip the embedded In marker
		if field.Anonymous && field.Type == inType {
			continue
		}

		if !field.IsExported() {
			return param, errors.Errorf("field %s of %s is not exported", field.Name, st)
		}

		param.inFields = append(param.inFields, paramInfo{
			typ:      field.Type,
			name:     field.Tag.Get("name"),
			optional: strings.EqualFold(field.Tag.Get("optional"), "true"),
			field:    i,
		})
	}

	return param, nil
}

// isInStruct checks if a type embeds graft.In
func isInStruct(t reflect.Type) bool {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	if t.Kind() != reflect.Struct {
		return false
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if field.Anonymous && field.Type == inType {
			return true
		}
	}

	return false
}

// dependencies flattens the parameters, expanding In structs into their fields.
func (c *constructorInfo) dependencies() []InjectableInfo {
	var deps []InjectableInfo

	for i, p := range c.params {
		if !p.isIn {
			deps = append(deps, InjectableInfo{Type: p.typ, MemberName: paramName(i)})

			continue
		}

		st := p.typ
		if st.Kind() == reflect.Ptr {
			st = st.Elem()
		}

		for _, f := range p.inFields {
			dep := InjectableInfo{
				Type:       f.typ,
				Optional:   f.optional,
				MemberName: st.Field(f.field).Name,
			}
			if f.name != "" {
				dep.Identifier = f.name
			}

			deps = append(deps, dep)
		}
	}

	return deps
}

func paramName(i int) string {
	return "arg" + strconv.Itoa(i)
}

func allocate(t reflect.Type) (any, error) {
	switch t.Kind() {
	case reflect.Interface:
		return nil, errors.Errorf("cannot allocate interface type %s; bind it to a concrete type", t)
	case reflect.Ptr:
		return reflect.New(t.Elem()).Interface(), nil
	default:
		return reflect.New(t).Elem().Interface(), nil
	}
}

// valueOf converts v to a value assignable to t, mapping nil to the zero value.
func valueOf(t reflect.Type, v any) reflect.Value {
	if v == nil || isMarker(v) {
		return reflect.Zero(t)
	}

	return reflect.ValueOf(v)
}
