// Package csvmap maps delimited rows to and from application records.
//
// Reading goes through three layers. The row reader in package rowio
// tokenizes the input and numbers each logical record. A ListMapper drops
// blank rows and strips whitespace. A FieldMapper then reconciles every row
// against a name list that is either given or taken from the first row.
// The reconciled pairs become a map (ReadKeyed) or are assigned onto a
// freshly constructed record (ReadObjects).
//
//	r, err := csvmap.ReadKeyed("people.csv", nil, csvmap.WithRestVal(""))
//	if err != nil {
//		return err
//	}
//	defer r.Close()
//	for rec, err := range r.All() {
//		if err != nil {
//			if csvmap.Recoverable(err) {
//				continue
//			}
//			return err
//		}
//		fmt.Println(rec["name"])
//	}
//
// Writing runs the other way. WriteKeyed and WriteObjects extract values for
// a declared field list. With WithMinimize they hold rows back until Close,
// so the header only names the fields that were actually used.
//
// Per-record handlers return a Result: Keep(v) passes a possibly replaced
// record on, and Omit drops it.
package csvmap
