package sqlinline

const QSelectIntegrationToken = `--sql 0c6f3b8e-2d57-4a1e-9f43-7b1d25e8a90c
select token
from integration_tokens
where provider = lower($1::text);
`

const QUpsertIntegrationToken = `--sql b4e27a91-5c0d-4f6b-8e13-d9a6c0f2471e
insert into integration_tokens (provider, token, properties)
values (lower($1::text), $2::text, coalesce($3::jsonb, '{}'::jsonb))
on conflict (provider) do update
set token = excluded.token,
    properties = integration_tokens.properties || excluded.properties,
    updated_at = now();
`

const QListIntegrationTokens = `--sql 7f9d4c20-86ab-4e35-b1c7-3a52e0d96f84
select provider, coalesce(properties->>'source', ''), updated_at
from integration_tokens
order by provider;
`

const QDeleteIntegrationToken = `--sql e13a5f67-9b2c-4d80-a4f1-6c8e7b0d2395
delete from integration_tokens
where provider = lower($1::text);
`
