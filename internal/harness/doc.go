// Package harness runs conformance scenarios against a sqlitekit database.
//
// A scenario creates a schema, runs a flow of operations through the
// toolkit, traces each step outcome together with the committed changes
// the observer delivers, and then checks assertions over that trace and
// the final rows.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	observe: [posts]
//	setup:
//	  - CREATE TABLE posts (id INTEGER PRIMARY KEY, title TEXT)
//	flow:
//	  - exec: { query: "INSERT INTO posts (title) VALUES (?)", values: [hello] }
//	    expect: { rows_affected: 1 }
//	  - tx:
//	      - query: "UPDATE posts SET title = 'x'"
//	      - query: "INSERT INTO posts (id) VALUES (1)"
//	    expect: { error: SQLITE_1555 }
//	  - page: { query: "SELECT * FROM posts", keyset: "id", size: 10 }
//	    expect: { rows: 1, has_more: false }
//	assertions:
//	  - type: change_count
//	    table: posts
//	    count: 1
//	  - type: final_state
//	    table: posts
//	    where: { id: 1 }
//	    expect: { title: hello }
//
// # Assertion Types
//
//   - change_count: counts traced changes, optionally filtered by table and operation
//   - change_order: verifies changes ("insert posts") appear in the given order
//   - final_state: queries one row and verifies expected column values
//   - row_count: verifies the number of rows in a table
//
// # Deterministic Testing
//
// Every run uses a fresh database file and a testutil.DeterministicClock
// for change timestamps, so identical scenarios produce identical traces
// for golden file comparison.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/posts.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(ctx, scenario, dir)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, msg := range result.Errors {
//	    log.Println(msg)
//	}
package harness
