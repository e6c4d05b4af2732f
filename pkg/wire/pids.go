package wire

// Standard parameter ids used by discovered-endpoint and discovered-
// participant data, DDSI-RTPS 2.4 table 9.14.
const (
	PIDUserData           ParameterId = 0x002c
	PIDTopicName          ParameterId = 0x0005
	PIDTypeName           ParameterId = 0x0007
	PIDDurability         ParameterId = 0x001d
	PIDDeadline           ParameterId = 0x0023
	PIDLatencyBudget      ParameterId = 0x0027
	PIDLiveliness         ParameterId = 0x001b
	PIDReliability        ParameterId = 0x001a
	PIDLifespan           ParameterId = 0x002b
	PIDDestinationOrder   ParameterId = 0x0025
	PIDHistory            ParameterId = 0x0040
	PIDResourceLimits     ParameterId = 0x0041
	PIDOwnership          ParameterId = 0x001f
	PIDTransportPriority  ParameterId = 0x0049
	PIDPresentation       ParameterId = 0x0021
	PIDPartition          ParameterId = 0x0029
	PIDTopicData          ParameterId = 0x002e
	PIDGroupData          ParameterId = 0x002d
	PIDUnicastLocator     ParameterId = 0x002f
	PIDMulticastLocator   ParameterId = 0x0030
	PIDParticipantGuid    ParameterId = 0x0050
	PIDEndpointGuid       ParameterId = 0x005a
	PIDBuiltinEndpointSet ParameterId = 0x0058
	PIDDomainId           ParameterId = 0x000f
	PIDDomainTag          ParameterId = 0x4014
	PIDKeyHash            ParameterId = 0x0070

	PIDProtocolVersion               ParameterId = 0x0015
	PIDVendorId                      ParameterId = 0x0016
	PIDExpectsInlineQos              ParameterId = 0x0043
	PIDParticipantLeaseDuration      ParameterId = 0x0002
	PIDParticipantManualLiveliness   ParameterId = 0x0034
	PIDMetatrafficUnicastLocator     ParameterId = 0x0032
	PIDMetatrafficMulticastLocator   ParameterId = 0x0033
	PIDDefaultUnicastLocator         ParameterId = 0x0031
)
