package store

const schema = `
CREATE TABLE IF NOT EXISTS items (
    id           TEXT PRIMARY KEY,
    source_kind  TEXT NOT NULL,
    external_id  TEXT NOT NULL,
    title        TEXT NOT NULL,
    url          TEXT NOT NULL DEFAULT '',
    body         TEXT NOT NULL DEFAULT '',
    summary      TEXT,
    topic_tag    TEXT,
    author       TEXT NOT NULL DEFAULT '',
    engagement   INTEGER NOT NULL DEFAULT 0,
    origin       TEXT NOT NULL DEFAULT '',
    image_url    TEXT NOT NULL DEFAULT '',
    fetched_at   DATETIME NOT NULL,
    published_at DATETIME NOT NULL,
    UNIQUE(source_kind, external_id)
);

CREATE INDEX IF NOT EXISTS idx_items_kind ON items(source_kind);
CREATE INDEX IF NOT EXISTS idx_items_published_at ON items(published_at);
CREATE INDEX IF NOT EXISTS idx_items_topic ON items(topic_tag);
CREATE INDEX IF NOT EXISTS idx_items_missing_summary ON items(fetched_at) WHERE summary IS NULL;
`
