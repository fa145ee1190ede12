package testutil

// PostsFixture creates and fills the posts table used by pagination tests.
//
// Ordered by (category ASC, score DESC, id ASC) the ids are
// 6, 7, 1, 2, 3, 4, 5.
var PostsFixture = []string{
	`CREATE TABLE posts (
		id INTEGER PRIMARY KEY,
		title TEXT NOT NULL,
		category TEXT NOT NULL,
		score INTEGER NOT NULL
	)`,
	`INSERT INTO posts (id, title, category, score) VALUES
		(1, 'Quantum basics', 'science', 95),
		(2, 'Cell biology', 'science', 80),
		(3, 'Rust vs Go', 'tech', 90),
		(4, 'SQLite internals', 'tech', 85),
		(5, 'Keyboard review', 'tech', 70),
		(6, 'Impressionism', 'art', 88),
		(7, 'Street murals', 'art', 60)`,
}
