package sqlinline

const QInsertUser = `--sql 5a82e2ad-7b09-40c5-9d22-2d28db58c0f0
insert into users (id, email, password_hash, name, locale_pref, created_at, updated_at)
values ($1::uuid, lower($2::text), $3::text, $4::text, nullif($5::text, ''), now(), now())
returning id::text, email, name, coalesce(locale_pref, ''), created_at;
`

const QSelectUserByEmail = `--sql 3f0c5d0e-41a3-4a53-9a58-0c8e9d0b6f21
select id::text, email, name, coalesce(locale_pref, ''), created_at, password_hash
from users
where email = lower($1::text)
limit 1;
`

const QSelectUserByID = `--sql 1239018e-4f5f-46a0-8f0d-81b2a3a5f0f8
select id::text, email, name, coalesce(locale_pref, ''), created_at
from users
where id = $1::uuid
limit 1;
`
