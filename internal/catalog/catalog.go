package catalog

import "fmt"

// Catalog is the closed union of a run's types, tables, operators, and
// routines, plus the type-keyed indices built once by Finalize. It answers
// "what tables/columns/functions/operators exist, and which produce a given
// result type?" in O(1) for the generator's hot path.
//
// A Catalog is shared-immutable once Finalize succeeds: callers may read it
// concurrently from multiple goroutines without locking, matching the
// no-shared-mutable-state discipline of the scheduler (internal/scheduler).
type Catalog struct {
	types      []*Type
	tables     []*Table
	operators  []*Operator
	routines   []*Routine
	finalized  bool

	typesByName map[string]*Type

	tablesWithColumnOfType         map[string][]*Table
	operatorsReturning             map[string][]*Operator
	routinesReturning              map[string][]*Routine
	aggregatesReturning            map[string][]*Routine
	windowsReturning               map[string][]*Routine
	parameterlessRoutinesReturning map[string][]*Routine
}

// New returns a Catalog pre-seeded with the required well-known types.
func New() *Catalog {
	c := &Catalog{typesByName: map[string]*Type{}}
	for _, t := range WellKnown() {
		c.RegisterType(t)
	}
	return c
}

// RegisterType appends t to the type pool. Re-registering a name already
// present is a no-op so callers may call New() then layer reflected types
// without special-casing the well-known set.
func (c *Catalog) RegisterType(t *Type) {
	if _, ok := c.typesByName[t.Name]; ok {
		return
	}
	c.types = append(c.types, t)
	c.typesByName[t.Name] = t
}

// RegisterTable appends a table or view to the pool.
func (c *Catalog) RegisterTable(t *Table) { c.tables = append(c.tables, t) }

// RegisterOperator appends a binary operator to the pool.
func (c *Catalog) RegisterOperator(o *Operator) { c.operators = append(c.operators, o) }

// RegisterRoutine appends a function, aggregate, or window function to the
// pool according to its Kind.
func (c *Catalog) RegisterRoutine(r *Routine) { c.routines = append(c.routines, r) }

// TypeNamed returns the registered type with the given name, or nil.
func (c *Catalog) TypeNamed(name string) *Type { return c.typesByName[name] }

// Types returns the full registered type pool.
func (c *Catalog) Types() []*Type { return c.types }

// Tables returns the full registered table/view pool.
func (c *Catalog) Tables() []*Table { return c.tables }

// Finalize validates closure (every indexed object's result/argument type
// resolves in the types table) and builds the type-keyed multi-indices.
// Construction fails and Finalize returns an error if any reference cannot
// be resolved; the Catalog must not be used before Finalize succeeds.
func (c *Catalog) Finalize() error {
	c.tablesWithColumnOfType = map[string][]*Table{}
	c.operatorsReturning = map[string][]*Operator{}
	c.routinesReturning = map[string][]*Routine{}
	c.aggregatesReturning = map[string][]*Routine{}
	c.windowsReturning = map[string][]*Routine{}
	c.parameterlessRoutinesReturning = map[string][]*Routine{}

	for _, t := range c.tables {
		for _, col := range t.Columns {
			if c.typesByName[col.Type.Name] == nil {
				return fmt.Errorf("catalog: column %s.%s has unresolved type %q", t.Name, col.Name, col.Type.Name)
			}
			c.tablesWithColumnOfType[col.Type.Name] = append(c.tablesWithColumnOfType[col.Type.Name], t)
		}
	}

	for _, op := range c.operators {
		for _, t := range []*Type{op.LeftType, op.RightType, op.ResultType} {
			if c.typesByName[t.Name] == nil {
				return fmt.Errorf("catalog: operator %s has unresolved type %q", op.Symbol, t.Name)
			}
		}
		c.operatorsReturning[op.ResultType.Name] = append(c.operatorsReturning[op.ResultType.Name], op)
	}

	for _, r := range c.routines {
		if c.typesByName[r.ResultType.Name] == nil {
			return fmt.Errorf("catalog: routine %s has unresolved result type %q", r.Name, r.ResultType.Name)
		}
		for _, a := range r.ArgTypes {
			if c.typesByName[a.Name] == nil {
				return fmt.Errorf("catalog: routine %s has unresolved argument type %q", r.Name, a.Name)
			}
		}

		switch r.Kind {
		case RoutineAggregate:
			c.aggregatesReturning[r.ResultType.Name] = append(c.aggregatesReturning[r.ResultType.Name], r)
		case RoutineWindow:
			c.windowsReturning[r.ResultType.Name] = append(c.windowsReturning[r.ResultType.Name], r)
		default:
			c.routinesReturning[r.ResultType.Name] = append(c.routinesReturning[r.ResultType.Name], r)
			if r.Parameterless() {
				c.parameterlessRoutinesReturning[r.ResultType.Name] = append(c.parameterlessRoutinesReturning[r.ResultType.Name], r)
			}
		}
	}

	c.finalized = true
	return nil
}

// Finalized reports whether Finalize has succeeded.
func (c *Catalog) Finalized() bool { return c.finalized }

// TablesWithColumnOfType returns every registered table having at least one
// column of the named type.
func (c *Catalog) TablesWithColumnOfType(typeName string) []*Table {
	return c.tablesWithColumnOfType[typeName]
}

// OperatorsReturning returns every binary operator whose result type is
// typeName.
func (c *Catalog) OperatorsReturning(typeName string) []*Operator {
	return c.operatorsReturning[typeName]
}

// RoutinesReturning returns every scalar function whose result type is
// typeName.
func (c *Catalog) RoutinesReturning(typeName string) []*Routine {
	return c.routinesReturning[typeName]
}

// AggregatesReturning returns every aggregate whose result type is typeName.
func (c *Catalog) AggregatesReturning(typeName string) []*Routine {
	return c.aggregatesReturning[typeName]
}

// WindowsReturning returns every window function whose result type is
// typeName.
func (c *Catalog) WindowsReturning(typeName string) []*Routine {
	return c.windowsReturning[typeName]
}

// ParameterlessRoutinesReturning returns every zero-argument routine whose
// result type is typeName (e.g. now(), current_user()).
func (c *Catalog) ParameterlessRoutinesReturning(typeName string) []*Routine {
	return c.parameterlessRoutinesReturning[typeName]
}

// BaseTables returns only the tables with IsBaseTable set, excluding views.
func (c *Catalog) BaseTables() []*Table {
	var out []*Table
	for _, t := range c.tables {
		if t.IsBaseTable {
			out = append(out, t)
		}
	}
	return out
}
