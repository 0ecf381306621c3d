// Package schema compiles CUE model declarations into typed specs.
//
// A model declares its document type, its attributes, optional index
// hints, and its relations:
//
//	model: users: {
//		type: "users"
//		fields: {
//			name:  string
//			score: number
//		}
//		indexes: [{name: "idx_users_name", kind: "GSI"}]
//		relation: {
//			roles:   {kind: "owned_array", related: "roles", field: "role_ids"}
//			address: {kind: "embeds_one", field: "address"}
//		}
//	}
//
// CompileModel parses one model value; Load reads every model in a
// directory of .cue files. Validate checks a set of models against each
// other (relation targets, reserved fields) and reports every problem
// rather than stopping at the first.
package schema
