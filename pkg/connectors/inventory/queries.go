package inventory

// KQL query templates for Azure Resource Graph. All queries are
// parameterized by the subscriptions list on the request body; nothing is
// hardcoded per subscription.

// queryAllResources is the full inventory snapshot, every resource in scope.
const queryAllResources = `
Resources
| project
    id,
    name,
    type,
    resourceGroup,
    subscriptionId,
    location,
    tags,
    properties,
    kind
| order by type asc
`

// queryUnattachedDisks finds unattached managed disks.
const queryUnattachedDisks = `
Resources
| where type =~ 'microsoft.compute/disks'
| extend diskState = tostring(properties.diskState)
| where diskState =~ 'Unattached'
| extend sizeGB = toint(properties.diskSizeGB)
| extend skuName = tostring(sku.name)
| project id, name, resourceGroup, subscriptionId, location, sizeGB, skuName, tags
`

// queryOrphanedPublicIPs finds public IPs not associated with any resource.
const queryOrphanedPublicIPs = `
Resources
| where type =~ 'microsoft.network/publicipaddresses'
| where isnull(properties.ipConfiguration) and isnull(properties.natGateway)
| extend skuName = tostring(sku.name)
| project id, name, resourceGroup, subscriptionId, location, skuName, tags
`

// queryOrphanedNICs finds network interfaces not attached to a VM.
const queryOrphanedNICs = `
Resources
| where type =~ 'microsoft.network/networkinterfaces'
| where isnull(properties.virtualMachine)
| project id, name, resourceGroup, subscriptionId, location, tags
`

// queryStaleSnapshots finds snapshots older than 90 days.
const queryStaleSnapshots = `
Resources
| where type =~ 'microsoft.compute/snapshots'
| extend timeCreated = todatetime(properties.timeCreated)
| where timeCreated < ago(90d)
| extend sizeGB = toint(properties.diskSizeGB)
| project id, name, resourceGroup, subscriptionId, location, sizeGB, timeCreated, tags
`

// queryAllVMs lists virtual machines for right-sizing.
const queryAllVMs = `
Resources
| where type =~ 'microsoft.compute/virtualmachines'
| extend vmSize = tostring(properties.hardwareProfile.vmSize)
| extend osType = tostring(properties.storageProfile.osDisk.osType)
| extend powerState = tostring(properties.extended.instanceView.powerState.displayStatus)
| project id, name, resourceGroup, subscriptionId, location, vmSize, osType, powerState, tags
`

// queryAppServicePlans lists App Service Plans for right-sizing.
const queryAppServicePlans = `
Resources
| where type =~ 'microsoft.web/serverfarms'
| extend skuName = tostring(sku.name)
| extend skuTier = tostring(sku.tier)
| extend currentWorkers = toint(properties.numberOfWorkers)
| extend maximumElasticWorkerCount = toint(properties.maximumElasticWorkerCount)
| project id, name, resourceGroup, subscriptionId, location, skuName, skuTier, currentWorkers, tags
`

// querySQLDatabases lists SQL databases, excluding master.
const querySQLDatabases = `
Resources
| where type =~ 'microsoft.sql/servers/databases'
| extend skuName = tostring(sku.name)
| extend skuTier = tostring(sku.tier)
| extend skuCapacity = toint(sku.capacity)
| where name !~ 'master'
| project id, name, resourceGroup, subscriptionId, location, skuName, skuTier, skuCapacity, tags
`

// queryMissingCostCenterTag finds resources missing the cost-center tag.
const queryMissingCostCenterTag = `
Resources
| where isnull(tags['cost-center']) or tags['cost-center'] =~ ''
| where type !in~ (
    'microsoft.resources/subscriptions/resourcegroups',
    'microsoft.authorization/roleassignments'
  )
| project id, name, type, resourceGroup, subscriptionId, location, tags
| order by type asc
`

// scanQueries are the waste and right-sizing scans run alongside the full
// inventory. A single scan failing does not abort the collection.
var scanQueries = map[string]string{
	"unattached_disks":        queryUnattachedDisks,
	"orphaned_public_ips":     queryOrphanedPublicIPs,
	"orphaned_nics":           queryOrphanedNICs,
	"stale_snapshots":         queryStaleSnapshots,
	"missing_cost_center_tag": queryMissingCostCenterTag,
	"virtual_machines":        queryAllVMs,
	"app_service_plans":       queryAppServicePlans,
	"sql_databases":           querySQLDatabases,
}
