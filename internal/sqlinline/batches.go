package sqlinline

const QCreateSchema = `--sql a1e32636-17d3-42b1-94dc-b6f9bbdd7913
create table if not exists video_batches (
    id text primary key,
    status text not null,
    locale text not null default 'en',
    requests_json jsonb not null default '[]'::jsonb,
    estimated_cost double precision not null default 0,
    result_json jsonb,
    merge_json jsonb,
    error_message text not null default '',
    created_at timestamptz not null default now(),
    updated_at timestamptz not null default now()
);
create table if not exists integration_tokens (
    provider text primary key,
    token text not null,
    properties jsonb not null default '{}'::jsonb,
    created_at timestamptz not null default now(),
    updated_at timestamptz not null default now()
);
`

const QInsertBatch = `--sql 6e219a15-598a-42e6-98ef-6359729fb931
insert into video_batches (id, status, locale, requests_json, estimated_cost, created_at, updated_at)
values ($1::text, $2::text, $3::text, $4::jsonb, $5::double precision, $6::timestamptz, $6::timestamptz);
`

const QSelectBatch = `--sql 48c657a2-c438-4ecc-bcfb-3635bcbf6e4f
select id, status, locale, requests_json, estimated_cost, result_json, merge_json, error_message, created_at, updated_at
from video_batches
where id = $1::text;
`

const QClaimBatch = `--sql 3f6b9c2e-8d41-4a57-b0e3-92c7d5a18e64
update video_batches
set status = 'running',
    error_message = '',
    updated_at = now()
where id = $1::text
  and status = 'queued'
returning id, status, locale, requests_json, estimated_cost, result_json, merge_json, error_message, created_at, updated_at;
`

const QSelectBatchRequests = `--sql dd661589-515f-408e-8338-38fa249029c5
select requests_json
from video_batches
where id = $1::text;
`

const QUpdateBatchStatus = `--sql 0b8d34d4-ffcb-4d2e-9083-343f41e61f4c
update video_batches
set status = $2::text,
    error_message = $3::text,
    updated_at = now()
where id = $1::text;
`

const QUpdateBatchResult = `--sql 60a5b4ef-8729-4261-9f7f-e7f62dcb5173
update video_batches
set result_json = $2::jsonb,
    updated_at = now()
where id = $1::text;
`

const QUpdateBatchMerge = `--sql 76733124-7cba-47ee-bfbe-a49c5d57c1ca
update video_batches
set merge_json = $2::jsonb,
    updated_at = now()
where id = $1::text;
`
