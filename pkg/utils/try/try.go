package try

// something have method `Fatal`.
//
// For example in standard libraries: *testing.T, log.Logger
type Fataler interface {
	Fatal(...any)
}

// Wrapper of a pair of (T, error) .
//
// When error is nil, such Either is "ok", and T value is handled as valid.
//
// Otherwise, it is "no good", and T value is not valid.
type Either[T any] struct {
	value T
	err   error
}

func To[T any](ok T, ng error) Either[T] {
	return Either[T]{value: ok, err: ng}
}

// get value & error pair
func (e Either[T]) Get() (T, error) {
	if e.err != nil {
		return *new(T), e.err
	}
	return e.value, nil
}

// When Either is "ok", it just return the T value.
//
// Otherwise, it calls ftl.Fatal(err) .
// If ftl has "Helper()" method (like *testing.T), also that is called before `Fatal`.
func (e Either[T]) OrFatal(ftl Fataler) T {
	if e.err == nil {
		return e.value
	}
	if hlp, ok := ftl.(interface{ Helper() }); ok {
		hlp.Helper()
	}
	ftl.Fatal(e.err)
	return *new(T)
}

func (e Either[T]) OrDefault(d T) T {
	if e.err != nil {
		return d
	}
	return e.value
}

// Wrapper of a triple of (T, U, error) .
type Either2[T, U any] struct {
	first  T
	second U
	err    error
}

func To2[T, U any](first T, second U, ng error) Either2[T, U] {
	return Either2[T, U]{first: first, second: second, err: ng}
}

// When Either2 is "ok", it returns the values.
//
// Otherwise, it calls ftl.Fatal(err) .
func (e Either2[T, U]) OrFatal(ftl Fataler) (T, U) {
	if e.err == nil {
		return e.first, e.second
	}
	if hlp, ok := ftl.(interface{ Helper() }); ok {
		hlp.Helper()
	}
	ftl.Fatal(e.err)
	return *new(T), *new(U)
}
